package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agncf/netfortress/internal/models"
)

// InventoryRow is a device joined with its site and (optional) credential
// set, loaded in a single query so that no further database access is needed
// while device I/O is in flight.
type InventoryRow struct {
	DeviceID          int64
	Hostname          string
	IP                string
	Platform          models.Platform
	SiteCode          string
	GiteaRepoName     string
	CredUsername      *string
	CredEncryptedPass *string
}

// DeviceRepository defines the interface for device inventory operations.
type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id int64) (*models.Device, error)
	List(ctx context.Context, siteID *int64) ([]*models.Device, error)
	ListEnabledIDs(ctx context.Context, siteID *int64) ([]int64, error)
	Update(ctx context.Context, device *models.Device) error
	Delete(ctx context.Context, id int64) error

	// ListInventory loads enabled devices with site and credential relations.
	// An empty deviceIDs slice means all enabled devices.
	ListInventory(ctx context.Context, deviceIDs []int64) ([]InventoryRow, error)
}

type deviceRepo struct {
	pool *pgxpool.Pool
}

// NewDeviceRepository creates a new device repository.
func NewDeviceRepository(pool *pgxpool.Pool) DeviceRepository {
	return &deviceRepo{pool: pool}
}

// Create inserts a new device.
func (r *deviceRepo) Create(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (hostname, ip, platform, site_id, credential_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		device.Hostname, device.IP, device.Platform, device.SiteID, device.CredentialID, device.Enabled,
	).Scan(&device.ID, &device.CreatedAt, &device.UpdatedAt)
}

// GetByID retrieves a device by ID.
func (r *deviceRepo) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	query := `
		SELECT id, hostname, ip, platform, site_id, credential_id, enabled, created_at, updated_at
		FROM devices WHERE id = $1`

	var device models.Device
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&device.ID, &device.Hostname, &device.IP, &device.Platform,
		&device.SiteID, &device.CredentialID, &device.Enabled,
		&device.CreatedAt, &device.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// List retrieves all devices, optionally filtered by site.
func (r *deviceRepo) List(ctx context.Context, siteID *int64) ([]*models.Device, error) {
	query := `
		SELECT id, hostname, ip, platform, site_id, credential_id, enabled, created_at, updated_at
		FROM devices
		WHERE ($1::bigint IS NULL OR site_id = $1)
		ORDER BY hostname`

	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		var device models.Device
		if err := rows.Scan(
			&device.ID, &device.Hostname, &device.IP, &device.Platform,
			&device.SiteID, &device.CredentialID, &device.Enabled,
			&device.CreatedAt, &device.UpdatedAt,
		); err != nil {
			return nil, err
		}
		devices = append(devices, &device)
	}
	return devices, rows.Err()
}

// ListEnabledIDs returns the IDs of enabled devices, optionally scoped to a
// site. Used when materialising a job's device batch.
func (r *deviceRepo) ListEnabledIDs(ctx context.Context, siteID *int64) ([]int64, error) {
	query := `
		SELECT id FROM devices
		WHERE enabled = TRUE AND ($1::bigint IS NULL OR site_id = $1)
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update replaces a device's mutable fields.
func (r *deviceRepo) Update(ctx context.Context, device *models.Device) error {
	query := `
		UPDATE devices
		SET hostname = $2, ip = $3, platform = $4, site_id = $5, credential_id = $6,
		    enabled = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		device.ID, device.Hostname, device.IP, device.Platform,
		device.SiteID, device.CredentialID, device.Enabled,
	).Scan(&device.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	return err
}

// Delete removes a device and its backup results.
func (r *deviceRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListInventory loads enabled devices with their site and credential
// relations in a single joined query.
func (r *deviceRepo) ListInventory(ctx context.Context, deviceIDs []int64) ([]InventoryRow, error) {
	query := `
		SELECT d.id, d.hostname, d.ip, d.platform,
		       s.code, s.gitea_repo_name,
		       c.username, c.encrypted_password
		FROM devices d
		JOIN sites s ON s.id = d.site_id
		LEFT JOIN credential_sets c ON c.id = d.credential_id
		WHERE d.enabled = TRUE
		  AND (cardinality($1::bigint[]) = 0 OR d.id = ANY($1))
		ORDER BY d.id`

	if deviceIDs == nil {
		deviceIDs = []int64{}
	}

	rows, err := r.pool.Query(ctx, query, deviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryRow
	for rows.Next() {
		var row InventoryRow
		if err := rows.Scan(
			&row.DeviceID, &row.Hostname, &row.IP, &row.Platform,
			&row.SiteCode, &row.GiteaRepoName,
			&row.CredUsername, &row.CredEncryptedPass,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Compile-time check
var _ DeviceRepository = (*deviceRepo)(nil)
