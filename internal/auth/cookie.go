package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Cookie writes and clears the session cookie.
type Cookie struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

func (ck Cookie) Set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, token, int(ck.TTL/time.Second), "/", "", ck.Secure, true)
}

func (ck Cookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, "", -1, "/", "", ck.Secure, true)
}

// Read returns the raw token, or "" when absent.
func (ck Cookie) Read(c *gin.Context) string {
	token, err := c.Cookie(ck.Name)
	if err != nil {
		return ""
	}
	return token
}
