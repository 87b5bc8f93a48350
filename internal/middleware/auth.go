package middleware

import (
	"database/sql"
	"errors"

	"github.com/01moynul/storefront-golang/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionKey = "session"

const sessionQuery = `
	SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.role, lh.login_time
	FROM login_history lh
	JOIN users u ON u.id = lh.user_id
	WHERE lh.id = ? AND lh.user_id = ? AND lh.logout_time IS NULL`

// SessionMiddleware resolves the session cookie into an *auth.Session.
// Requests without a valid, still-open session continue as anonymous.
func SessionMiddleware(db *sql.DB, tokens *auth.TokenManager, cookie auth.Cookie, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. No cookie, nothing to resolve.
		raw := cookie.Read(c)
		if raw == "" {
			c.Next()
			return
		}

		// 2. Check the signature and expiry.
		claims, err := tokens.Validate(raw)
		if err != nil {
			cookie.Clear(c)
			c.Next()
			return
		}

		// 3. The login_history row must still be open (not logged out).
		s := &auth.Session{ID: claims.SessionID}
		err = db.QueryRowContext(c.Request.Context(), sessionQuery, claims.SessionID, claims.UserID).Scan(
			&s.UserID, &s.Username, &s.Email, &s.FirstName, &s.LastName, &s.Role, &s.LoginTime,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				cookie.Clear(c)
			} else {
				log.Error("failed to load session", zap.Int64("session_id", claims.SessionID), zap.Error(err))
			}
			c.Next()
			return
		}

		c.Set(sessionKey, s)
		c.Next()
	}
}

// CurrentSession returns the caller's session, or nil when anonymous.
func CurrentSession(c *gin.Context) *auth.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*auth.Session)
	return s
}

// SetSession is used by login/registration so the same request sees the new session.
func SetSession(c *gin.Context, s *auth.Session) {
	c.Set(sessionKey, s)
}
