package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agncf/netfortress/internal/models"
)

// CredentialRepository defines the interface for credential set operations.
// Passwords are encrypted by the caller before they reach this layer.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.CredentialSet) error
	GetByID(ctx context.Context, id int64) (*models.CredentialSet, error)
	List(ctx context.Context) ([]*models.CredentialSet, error)
	Update(ctx context.Context, cred *models.CredentialSet) error
	Delete(ctx context.Context, id int64) error
}

type credentialRepo struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepo{pool: pool}
}

// Create inserts a new credential set.
func (r *credentialRepo) Create(ctx context.Context, cred *models.CredentialSet) error {
	query := `
		INSERT INTO credential_sets (label, username, encrypted_password)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query, cred.Label, cred.Username, cred.EncryptedPassword).
		Scan(&cred.ID, &cred.CreatedAt, &cred.UpdatedAt)
}

// GetByID retrieves a credential set by ID.
func (r *credentialRepo) GetByID(ctx context.Context, id int64) (*models.CredentialSet, error) {
	query := `
		SELECT id, label, username, encrypted_password, created_at, updated_at
		FROM credential_sets WHERE id = $1`

	var cred models.CredentialSet
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&cred.ID, &cred.Label, &cred.Username, &cred.EncryptedPassword,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// List retrieves all credential sets ordered by label.
func (r *credentialRepo) List(ctx context.Context) ([]*models.CredentialSet, error) {
	query := `
		SELECT id, label, username, encrypted_password, created_at, updated_at
		FROM credential_sets ORDER BY label`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.CredentialSet
	for rows.Next() {
		var cred models.CredentialSet
		if err := rows.Scan(
			&cred.ID, &cred.Label, &cred.Username, &cred.EncryptedPassword,
			&cred.CreatedAt, &cred.UpdatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, &cred)
	}
	return creds, rows.Err()
}

// Update replaces a credential set's fields.
func (r *credentialRepo) Update(ctx context.Context, cred *models.CredentialSet) error {
	query := `
		UPDATE credential_sets
		SET label = $2, username = $3, encrypted_password = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query, cred.ID, cred.Label, cred.Username, cred.EncryptedPassword).
		Scan(&cred.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	return err
}

// Delete removes a credential set. Devices referencing it fall back to the
// global credential tier on the next run.
func (r *credentialRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM credential_sets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Compile-time check
var _ CredentialRepository = (*credentialRepo)(nil)
