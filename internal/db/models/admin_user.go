// Package models - admin_user.go defines the dashboard administrator account.
package models

import "time"

// AdminUser is a dashboard account. The password hash never leaves the server.
type AdminUser struct {
	ID           string     `db:"id" json:"userId"`
	Username     string     `db:"username" json:"username"`
	PasswordHash string     `db:"password_hash" json:"-"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}
