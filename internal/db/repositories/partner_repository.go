// partner_repository.go implements PartnerRepository, providing queries for partner logos.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
)

const partnerColumns = `id, name, image, created_at, updated_at`

// PartnerUpdate carries the fields of a partial update; nil fields are kept.
type PartnerUpdate struct {
	Name  *string
	Image *string
}

// PartnerRepository handles partner database operations
type PartnerRepository struct {
	db db.Provider
}

// NewPartnerRepository creates a new PartnerRepository
func NewPartnerRepository(p db.Provider) *PartnerRepository {
	return &PartnerRepository{db: p}
}

// ListPartners returns every partner, newest first
func (r *PartnerRepository) ListPartners(ctx context.Context) ([]*models.Partner, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	partners := []*models.Partner{}
	err = conn.SelectContext(ctx, &partners,
		`SELECT `+partnerColumns+` FROM partners ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return partners, nil
}

// GetPartner retrieves a partner by ID, or nil when it does not exist
func (r *PartnerRepository) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	partner := &models.Partner{}
	err = conn.GetContext(ctx, partner, `SELECT `+partnerColumns+` FROM partners WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return partner, nil
}

// CreatePartner inserts a partner, assigning its ID and timestamps
func (r *PartnerRepository) CreatePartner(ctx context.Context, partner *models.Partner) error {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return err
	}

	partner.ID = uuid.New().String()
	partner.CreatedAt = time.Now()
	partner.UpdatedAt = partner.CreatedAt

	_, err = conn.ExecContext(ctx, `
		INSERT INTO partners (id, name, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		partner.ID, partner.Name, partner.Image, partner.CreatedAt, partner.UpdatedAt)
	return err
}

// UpdatePartner applies a partial update and returns the updated record plus
// the image reference it held before. A missing record yields nil, "", nil.
func (r *PartnerRepository) UpdatePartner(ctx context.Context, id string, upd PartnerUpdate) (*models.Partner, string, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, "", err
	}

	var row struct {
		models.Partner
		Previous string `db:"previous_image"`
	}
	err = conn.GetContext(ctx, &row, `
		UPDATE partners AS p
		SET name = COALESCE($2, p.name),
		    image = COALESCE($3, p.image),
		    updated_at = $4
		FROM (SELECT id, image AS previous_image FROM partners WHERE id = $1 FOR UPDATE) AS old
		WHERE p.id = old.id
		RETURNING p.id, p.name, p.image, p.created_at, p.updated_at, old.previous_image`,
		id, upd.Name, upd.Image, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	partner := row.Partner
	return &partner, row.Previous, nil
}

// DeletePartner removes a partner and returns it, or nil when it did not exist
func (r *PartnerRepository) DeletePartner(ctx context.Context, id string) (*models.Partner, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	partner := &models.Partner{}
	err = conn.GetContext(ctx, partner, `DELETE FROM partners WHERE id = $1 RETURNING `+partnerColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return partner, nil
}

// CountPartners returns the number of partners
func (r *PartnerRepository) CountPartners(ctx context.Context) (int, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM partners`)
	return n, err
}
