package auth

import (
	"time"

	"github.com/01moynul/storefront-golang/internal/models"
)

// Session is the authenticated caller of one request. It is created at login,
// loaded by the session middleware on each request, and destroyed at logout.
type Session struct {
	ID        int64 // login_history.id
	UserID    int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      models.Role
	LoginTime time.Time
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == models.RoleAdmin
}

// DashboardPath is where the caller lands after login or a denied request.
func (s *Session) DashboardPath() string {
	return DashboardFor(s.Role)
}

// DashboardFor maps a role to its dashboard route. Unknown roles land on the
// public home page so that a role gate can never redirect back into itself.
func DashboardFor(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "/admin-dashboard/"
	case models.RoleUser:
		return "/dashboard/"
	default:
		return "/"
	}
}
