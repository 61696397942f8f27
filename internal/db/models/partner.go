// Package models - partner.go defines the Partner model: a named logo shown in
// the partners strip.
package models

import "time"

// Partner represents a partner organisation and its logo reference
type Partner struct {
	ID        string    `db:"id" json:"_id"`
	Name      string    `db:"name" json:"name"`
	Image     string    `db:"image" json:"image"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
