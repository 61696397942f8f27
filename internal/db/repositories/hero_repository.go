// hero_repository.go implements HeroRepository, providing queries for the hero carousel images.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
)

const heroColumns = `id, image, created_at, updated_at`

// HeroRepository handles hero image database operations
type HeroRepository struct {
	db db.Provider
}

// NewHeroRepository creates a new HeroRepository
func NewHeroRepository(p db.Provider) *HeroRepository {
	return &HeroRepository{db: p}
}

// ListHeroImages returns every hero image, newest first
func (r *HeroRepository) ListHeroImages(ctx context.Context) ([]*models.HeroImage, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	images := []*models.HeroImage{}
	err = conn.SelectContext(ctx, &images,
		`SELECT `+heroColumns+` FROM hero_images ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return images, nil
}

// GetHeroImage retrieves a hero image by ID. It returns nil, nil when the
// record does not exist.
func (r *HeroRepository) GetHeroImage(ctx context.Context, id string) (*models.HeroImage, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	hero := &models.HeroImage{}
	err = conn.GetContext(ctx, hero, `SELECT `+heroColumns+` FROM hero_images WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hero, nil
}

// CreateHeroImages inserts one record per image reference in a single
// transaction; either all records are created or none.
func (r *HeroRepository) CreateHeroImages(ctx context.Context, refs []string) ([]*models.HeroImage, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Timestamps step by one microsecond (the column's precision) in upload
	// order so newest-first listing is deterministic within a batch.
	now := time.Now().Truncate(time.Microsecond)
	created := make([]*models.HeroImage, 0, len(refs))
	for i, ref := range refs {
		at := now.Add(time.Duration(i) * time.Microsecond)
		hero := &models.HeroImage{
			ID:        uuid.New().String(),
			Image:     ref,
			CreatedAt: at,
			UpdatedAt: at,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO hero_images (id, image, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			hero.ID, hero.Image, hero.CreatedAt, hero.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert hero image: %w", err)
		}
		created = append(created, hero)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

// UpdateHeroImage replaces the image reference of a record and returns the
// updated record together with the reference it replaced. A missing record
// yields nil, "", nil.
func (r *HeroRepository) UpdateHeroImage(ctx context.Context, id, ref string) (*models.HeroImage, string, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, "", err
	}

	var row struct {
		models.HeroImage
		Previous string `db:"previous_image"`
	}
	err = conn.GetContext(ctx, &row, `
		UPDATE hero_images AS h
		SET image = $2, updated_at = $3
		FROM (SELECT id, image AS previous_image FROM hero_images WHERE id = $1 FOR UPDATE) AS old
		WHERE h.id = old.id
		RETURNING h.id, h.image, h.created_at, h.updated_at, old.previous_image`,
		id, ref, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	hero := row.HeroImage
	return &hero, row.Previous, nil
}

// DeleteHeroImage removes a record and returns it, or nil when it did not exist.
func (r *HeroRepository) DeleteHeroImage(ctx context.Context, id string) (*models.HeroImage, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	hero := &models.HeroImage{}
	err = conn.GetContext(ctx, hero, `DELETE FROM hero_images WHERE id = $1 RETURNING `+heroColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return hero, nil
}

// CountHeroImages returns the number of hero images
func (r *HeroRepository) CountHeroImages(ctx context.Context) (int, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM hero_images`)
	return n, err
}
