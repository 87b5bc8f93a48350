package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/01moynul/storefront-golang/internal/models"
)

// CreateAdmin inserts an account with the admin role and returns its id.
func CreateAdmin(ctx context.Context, db *sql.DB, username, email, plaintext string) (int64, error) {
	var password models.Password
	if err := password.Set(plaintext); err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role, created_at)
		VALUES (?, ?, ?, '', '', ?, ?)`,
		username, email, password.Hash, models.RoleAdmin, time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
