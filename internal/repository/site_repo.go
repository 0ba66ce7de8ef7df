// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agncf/netfortress/internal/models"
)

// SiteRepository defines the interface for site data operations.
type SiteRepository interface {
	Create(ctx context.Context, site *models.Site) error
	GetByID(ctx context.Context, id int64) (*models.Site, error)
	GetByCode(ctx context.Context, code string) (*models.Site, error)
	List(ctx context.Context) ([]*models.Site, error)
	Update(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id int64) error
}

type siteRepo struct {
	pool *pgxpool.Pool
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(pool *pgxpool.Pool) SiteRepository {
	return &siteRepo{pool: pool}
}

// Create inserts a new site.
func (r *siteRepo) Create(ctx context.Context, site *models.Site) error {
	query := `
		INSERT INTO sites (code, name, gitea_repo_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query, site.Code, site.Name, site.GiteaRepoName).
		Scan(&site.ID, &site.CreatedAt, &site.UpdatedAt)
}

// GetByID retrieves a site by ID.
func (r *siteRepo) GetByID(ctx context.Context, id int64) (*models.Site, error) {
	query := `
		SELECT id, code, name, gitea_repo_name, created_at, updated_at
		FROM sites WHERE id = $1`

	var site models.Site
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&site.ID, &site.Code, &site.Name, &site.GiteaRepoName, &site.CreatedAt, &site.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// GetByCode retrieves a site by its unique short code.
func (r *siteRepo) GetByCode(ctx context.Context, code string) (*models.Site, error) {
	query := `
		SELECT id, code, name, gitea_repo_name, created_at, updated_at
		FROM sites WHERE code = $1`

	var site models.Site
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&site.ID, &site.Code, &site.Name, &site.GiteaRepoName, &site.CreatedAt, &site.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// List retrieves all sites ordered by code.
func (r *siteRepo) List(ctx context.Context) ([]*models.Site, error) {
	query := `
		SELECT id, code, name, gitea_repo_name, created_at, updated_at
		FROM sites ORDER BY code`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		var site models.Site
		if err := rows.Scan(
			&site.ID, &site.Code, &site.Name, &site.GiteaRepoName, &site.CreatedAt, &site.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sites = append(sites, &site)
	}
	return sites, rows.Err()
}

// Update updates a site's mutable fields.
func (r *siteRepo) Update(ctx context.Context, site *models.Site) error {
	query := `
		UPDATE sites
		SET code = $2, name = $3, gitea_repo_name = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query, site.ID, site.Code, site.Name, site.GiteaRepoName).
		Scan(&site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	return err
}

// Delete removes a site and, via cascade, its devices.
func (r *siteRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Compile-time check
var _ SiteRepository = (*siteRepo)(nil)
