package middleware

import (
	"net/http"

	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const LoginPath = "/login/"

//
// --- Role Gate ---
//
// Both guards redirect instead of answering 401/403: an anonymous caller goes to
// the login page, a caller with the wrong role goes back to their own dashboard.
//

// RequireLogin lets any authenticated caller through.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentSession(c) == nil {
			flash.Errorf(c, "Please log in first.")
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole lets through only callers whose role is exactly role.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := CurrentSession(c)
		if s == nil {
			flash.Errorf(c, "Please log in first.")
			c.Redirect(http.StatusFound, LoginPath)
			c.Abort()
			return
		}

		if s.Role != role {
			flash.Errorf(c, "Access denied: %ss only.", cases.Title(language.English).String(string(role)))
			c.Redirect(http.StatusFound, s.DashboardPath())
			c.Abort()
			return
		}

		c.Next()
	}
}
