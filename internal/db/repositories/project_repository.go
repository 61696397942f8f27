// project_repository.go implements ProjectRepository, providing queries for portfolio projects.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/doubleh-portfolio/portfolio-api/internal/db"
	"github.com/doubleh-portfolio/portfolio-api/internal/db/models"
)

const projectColumns = `id, name, description, date, link, images, created_at, updated_at`

// ProjectRepository handles project database operations
type ProjectRepository struct {
	db db.Provider
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(p db.Provider) *ProjectRepository {
	return &ProjectRepository{db: p}
}

// ListProjects returns every project, newest first
func (r *ProjectRepository) ListProjects(ctx context.Context) ([]*models.Project, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	projects := []*models.Project{}
	err = conn.SelectContext(ctx, &projects,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject retrieves a project by ID, or nil when it does not exist
func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	project := &models.Project{}
	err = conn.GetContext(ctx, project, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CreateProject inserts a project, assigning its ID and timestamps
func (r *ProjectRepository) CreateProject(ctx context.Context, project *models.Project) error {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return err
	}

	project.ID = uuid.New().String()
	project.CreatedAt = time.Now()
	project.UpdatedAt = project.CreatedAt
	if project.Images == nil {
		project.Images = pq.StringArray{}
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, date, link, images, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		project.ID, project.Name, project.Description, project.Date, project.Link,
		project.Images, project.CreatedAt, project.UpdatedAt,
	)
	return err
}

// UpdateProject loads the project under a row lock, lets apply mutate it and
// writes the result back in the same transaction. It returns the updated record
// and a copy of the record as it was before. A missing record yields nil, nil,
// nil. An error from apply aborts the update and is returned unchanged.
func (r *ProjectRepository) UpdateProject(ctx context.Context, id string, apply func(*models.Project) error) (updated, before *models.Project, err error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, nil, err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	project := &models.Project{}
	err = tx.GetContext(ctx, project,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	prev := *project
	prev.Images = append(pq.StringArray{}, project.Images...)

	if err := apply(project); err != nil {
		return nil, nil, err
	}
	if project.Images == nil {
		project.Images = pq.StringArray{}
	}
	project.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		UPDATE projects
		SET name = $2, description = $3, date = $4, link = $5, images = $6, updated_at = $7
		WHERE id = $1`,
		project.ID, project.Name, project.Description, project.Date, project.Link,
		project.Images, project.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return project, &prev, nil
}

// DeleteProject removes a project and returns it, or nil when it did not exist
func (r *ProjectRepository) DeleteProject(ctx context.Context, id string) (*models.Project, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return nil, err
	}

	project := &models.Project{}
	err = conn.GetContext(ctx, project, `DELETE FROM projects WHERE id = $1 RETURNING `+projectColumns, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

// CountProjects returns the number of projects
func (r *ProjectRepository) CountProjects(ctx context.Context) (int, error) {
	conn, err := r.db.DB(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM projects`)
	return n, err
}
