package handlers

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/01moynul/storefront-golang/internal/auth"
	"github.com/01moynul/storefront-golang/internal/database"
	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/middleware"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//
// --- Account Handlers (Public) ---
//

// Home is the handler for GET /
func (h *Handlers) Home(c *gin.Context) {
	h.render(c, "home.html", gin.H{"Title": "Home"})
}

// RegisterInput holds the registration form.
type RegisterInput struct {
	Username  string `form:"username" binding:"required,max=150"`
	Email     string `form:"email" binding:"required,max=254"`
	Password1 string `form:"password1" binding:"required"`
	Password2 string `form:"password2" binding:"required"`
	FirstName string `form:"first_name" binding:"max=150"`
	LastName  string `form:"last_name" binding:"max=150"`
}

// ShowRegister is the handler for GET /register/
func (h *Handlers) ShowRegister(c *gin.Context) {
	h.render(c, "register.html", gin.H{"Title": "Register"})
}

// Register is the handler for POST /register/
func (h *Handlers) Register(c *gin.Context) {
	// 1. --- Bind & Validate Form ---
	var input RegisterInput
	if err := c.ShouldBind(&input); err != nil {
		h.Log.Debug("invalid registration form", zap.Strings("fields", invalidFields(err)))
		flash.Errorf(c, "Please fill in all required fields with valid values.")
		h.redirect(c, "/register/")
		return
	}
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)

	if input.Password1 != input.Password2 {
		flash.Errorf(c, "Passwords do not match.")
		h.redirect(c, "/register/")
		return
	}

	ctx := c.Request.Context()

	// 2. --- Existing Accounts ---
	// Checked one at a time so the notice can say which field is taken.
	// The UNIQUE keys still guard the race between check and insert.
	taken, err := h.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)", input.Username)
	if err != nil {
		h.fail(c, "/register/", "failed to check username", err)
		return
	}
	if taken {
		flash.Errorf(c, "Username already exists. Please log in.")
		h.redirect(c, middleware.LoginPath)
		return
	}
	taken, err = h.exists(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)", input.Email)
	if err != nil {
		h.fail(c, "/register/", "failed to check email", err)
		return
	}
	if taken {
		flash.Errorf(c, "Email already exists. Please log in.")
		h.redirect(c, middleware.LoginPath)
		return
	}

	// 3. --- Hash the Password ---
	var password models.Password
	if err := password.Set(input.Password1); err != nil {
		h.fail(c, "/register/", "failed to hash password", err)
		return
	}

	// 4. --- Save the User ---
	user := &models.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: password.Hash,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		Role:         models.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	res, err := h.DB.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.CreatedAt,
	)
	if err != nil {
		// Lost a race with a concurrent registration.
		if database.IsDuplicateEntry(err) {
			flash.Errorf(c, "Username or email already exists. Please log in.")
			h.redirect(c, middleware.LoginPath)
			return
		}
		h.fail(c, "/register/", "failed to create user", err)
		return
	}
	if user.ID, err = res.LastInsertId(); err != nil {
		h.fail(c, "/register/", "failed to read new user id", err)
		return
	}

	// 5. --- Log the New User In ---
	// Same session path as Login: a login_history row plus the cookie.
	if err := h.startSession(c, user); err != nil {
		h.fail(c, middleware.LoginPath, "failed to start session", err)
		return
	}
	h.Log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	flash.Successf(c, "Welcome, %s! Your account was created successfully.", user.Username)
	h.redirect(c, auth.DashboardFor(user.Role))
}

// LoginInput holds the login form.
type LoginInput struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// ShowLogin is the handler for GET /login/
func (h *Handlers) ShowLogin(c *gin.Context) {
	if s := middleware.CurrentSession(c); s != nil {
		h.redirect(c, s.DashboardPath())
		return
	}
	h.render(c, "login.html", gin.H{"Title": "Log in"})
}

// Login is the handler for POST /login/
func (h *Handlers) Login(c *gin.Context) {
	if s := middleware.CurrentSession(c); s != nil {
		h.redirect(c, s.DashboardPath())
		return
	}

	var input LoginInput
	if err := c.ShouldBind(&input); err != nil {
		flash.Errorf(c, "Invalid username or password.")
		h.redirect(c, middleware.LoginPath)
		return
	}

	// 1. --- Find the User ---
	var user models.User
	err := h.DB.QueryRowContext(c.Request.Context(), `
		SELECT id, username, email, password_hash, first_name, last_name, role, created_at
		FROM users WHERE username = ?`, strings.TrimSpace(input.Username),
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			flash.Errorf(c, "Invalid username or password.")
			h.redirect(c, middleware.LoginPath)
			return
		}
		h.fail(c, middleware.LoginPath, "failed to load user", err)
		return
	}

	// 2. --- Check the Password ---
	password := models.Password{Hash: user.PasswordHash}
	match, err := password.Matches(input.Password)
	if err != nil {
		h.fail(c, middleware.LoginPath, "failed to compare password", err)
		return
	}
	if !match {
		flash.Errorf(c, "Invalid username or password.")
		h.redirect(c, middleware.LoginPath)
		return
	}

	// 3. --- Open a Session ---
	if err := h.startSession(c, &user); err != nil {
		h.fail(c, middleware.LoginPath, "failed to start session", err)
		return
	}
	flash.Successf(c, "Welcome back, %s!", user.Username)
	h.redirect(c, auth.DashboardFor(user.Role))
}

// Logout is the handler for POST /logout/
func (h *Handlers) Logout(c *gin.Context) {
	s := middleware.CurrentSession(c)

	_, err := h.DB.ExecContext(c.Request.Context(),
		"UPDATE login_history SET logout_time = ? WHERE id = ? AND logout_time IS NULL",
		time.Now().UTC(), s.ID,
	)
	if err != nil {
		h.fail(c, s.DashboardPath(), "failed to close session", err)
		return
	}

	h.Cookie.Clear(c)
	flash.Successf(c, "You have successfully logged out.")
	h.redirect(c, middleware.LoginPath)
}

// startSession records a login_history row and hands the caller a cookie bound to it.
func (h *Handlers) startSession(c *gin.Context, user *models.User) error {
	loginTime := time.Now().UTC()
	ip := c.ClientIP()

	res, err := h.DB.ExecContext(c.Request.Context(),
		"INSERT INTO login_history (user_id, login_time, ip_address) VALUES (?, ?, ?)",
		user.ID, loginTime, ip,
	)
	if err != nil {
		return err
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	token, err := h.Tokens.Issue(user.ID, user.Role, sessionID)
	if err != nil {
		return err
	}
	h.Cookie.Set(c, token)

	middleware.SetSession(c, &auth.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		LoginTime: loginTime,
	})
	h.Log.Info("user logged in", zap.Int64("user_id", user.ID), zap.Int64("session_id", sessionID))
	return nil
}

func (h *Handlers) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	err := h.DB.QueryRowContext(ctx, query, args...).Scan(&found)
	return found, err
}
