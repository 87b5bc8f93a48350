package models

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role decides which dashboard and operations an account may reach.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User is the model for the 'users' table.
// Self-registered accounts are always RoleUser; admins are created with cmd/createadmin.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"firstName" db:"first_name"`
	LastName     string    `json:"lastName" db:"last_name"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// LoginHistory is the model for the 'login_history' table.
// Each row doubles as the server-side record of one session.
type LoginHistory struct {
	ID         int64      `json:"id" db:"id"`
	UserID     int64      `json:"userId" db:"user_id"`
	Username   string     `json:"username" db:"-"`
	LoginTime  time.Time  `json:"loginTime" db:"login_time"`
	LogoutTime *time.Time `json:"logoutTime,omitempty" db:"logout_time"`
	IPAddress  *string    `json:"ipAddress,omitempty" db:"ip_address"`
}

// Password Helper (Standard)
type Password struct {
	Plaintext *string
	Hash      string
}

func (p *Password) Set(plaintextPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintextPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.Hash = string(hash)
	p.Plaintext = &plaintextPassword
	return nil
}

func (p *Password) Matches(plaintextPassword string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(p.Hash), []byte(plaintextPassword))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
