package flash

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CookieName carries pending notices across one redirect.
const CookieName = "storefront_flash"

const contextKey = "flash.pending"

type Level string

const (
	Success Level = "success"
	Info    Level = "info"
	Error   Level = "error"
)

// Message is one user-facing notice.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

func (m Message) String() string {
	return fmt.Sprintf("%s: %s", m.Level, m.Text)
}

// Add queues a notice for the next rendered page.
func Add(c *gin.Context, level Level, format string, args ...interface{}) {
	pending := pendingFrom(c)
	pending = append(pending, Message{Level: level, Text: fmt.Sprintf(format, args...)})
	c.Set(contextKey, pending)
	writeCookie(c, encode(pending), 0)
}

func Successf(c *gin.Context, format string, args ...interface{}) { Add(c, Success, format, args...) }
func Infof(c *gin.Context, format string, args ...interface{})    { Add(c, Info, format, args...) }
func Errorf(c *gin.Context, format string, args ...interface{})   { Add(c, Error, format, args...) }

// Pop returns the queued notices and clears them.
func Pop(c *gin.Context) []Message {
	pending := pendingFrom(c)
	c.Set(contextKey, []Message(nil))
	if _, err := c.Cookie(CookieName); err == nil || len(pending) > 0 {
		writeCookie(c, "", -1)
	}
	return pending
}

// Decode reads notices from a raw cookie value. Malformed values yield nothing.
func Decode(raw string) []Message {
	if raw == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

func encode(msgs []Message) string {
	data, err := json.Marshal(msgs)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func pendingFrom(c *gin.Context) []Message {
	if v, ok := c.Get(contextKey); ok {
		msgs, _ := v.([]Message)
		return msgs
	}
	raw, err := c.Cookie(CookieName)
	if err != nil {
		return nil
	}
	msgs := Decode(raw)
	c.Set(contextKey, msgs)
	return msgs
}

func writeCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", false, true)
}
