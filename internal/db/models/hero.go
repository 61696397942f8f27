// Package models - hero.go defines the HeroImage model backing the landing page
// carousel. Each record holds exactly one stored image reference.
package models

import "time"

// HeroImage is one image of the hero carousel. The JSON field name "images"
// (singular value, plural name) is what the dashboard reads.
type HeroImage struct {
	ID        string    `db:"id" json:"_id"`
	Image     string    `db:"image" json:"images"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
