// Package models - project.go defines the Project model with its ordered list
// of stored image references.
package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Project represents a portfolio project
type Project struct {
	ID          string         `db:"id" json:"_id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Date        *time.Time     `db:"date" json:"date,omitempty"`
	Link        *string        `db:"link" json:"link,omitempty"`
	Images      pq.StringArray `db:"images" json:"images"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// MarshalJSON keeps "images" an array even when no image was ever attached.
func (p Project) MarshalJSON() ([]byte, error) {
	type project Project
	out := project(p)
	if out.Images == nil {
		out.Images = pq.StringArray{}
	}
	return json.Marshal(out)
}
