package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agncf/netfortress/internal/models"
)

// ScheduleRepository defines the interface for recurring backup schedules.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.BackupSchedule) error
	GetByID(ctx context.Context, id int64) (*models.BackupSchedule, error)
	List(ctx context.Context) ([]*models.BackupSchedule, error)
	ListEnabled(ctx context.Context) ([]*models.BackupSchedule, error)
	Update(ctx context.Context, schedule *models.BackupSchedule) error
	Delete(ctx context.Context, id int64) error
	TouchLastRun(ctx context.Context, id int64, at time.Time) error
}

type scheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepo{pool: pool}
}

// Create inserts a new schedule.
func (r *scheduleRepo) Create(ctx context.Context, schedule *models.BackupSchedule) error {
	query := `
		INSERT INTO backup_schedules (name, frequency, hour, day_of_week, site_id, enabled)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		schedule.Name, schedule.Frequency, schedule.Hour, schedule.DayOfWeek,
		schedule.SiteID, schedule.Enabled,
	).Scan(&schedule.ID, &schedule.CreatedAt, &schedule.UpdatedAt)
}

// GetByID retrieves a schedule by ID.
func (r *scheduleRepo) GetByID(ctx context.Context, id int64) (*models.BackupSchedule, error) {
	query := `
		SELECT id, name, frequency, hour, day_of_week, site_id, enabled, last_run_at, created_at, updated_at
		FROM backup_schedules WHERE id = $1`

	var s models.BackupSchedule
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Frequency, &s.Hour, &s.DayOfWeek,
		&s.SiteID, &s.Enabled, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List retrieves all schedules ordered by ID.
func (r *scheduleRepo) List(ctx context.Context) ([]*models.BackupSchedule, error) {
	return r.list(ctx, `
		SELECT id, name, frequency, hour, day_of_week, site_id, enabled, last_run_at, created_at, updated_at
		FROM backup_schedules ORDER BY id`)
}

// ListEnabled retrieves schedules that should have a live cron entry.
func (r *scheduleRepo) ListEnabled(ctx context.Context) ([]*models.BackupSchedule, error) {
	return r.list(ctx, `
		SELECT id, name, frequency, hour, day_of_week, site_id, enabled, last_run_at, created_at, updated_at
		FROM backup_schedules WHERE enabled = TRUE ORDER BY id`)
}

func (r *scheduleRepo) list(ctx context.Context, query string) ([]*models.BackupSchedule, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*models.BackupSchedule
	for rows.Next() {
		var s models.BackupSchedule
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Frequency, &s.Hour, &s.DayOfWeek,
			&s.SiteID, &s.Enabled, &s.LastRunAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		schedules = append(schedules, &s)
	}
	return schedules, rows.Err()
}

// Update replaces a schedule's mutable fields.
func (r *scheduleRepo) Update(ctx context.Context, schedule *models.BackupSchedule) error {
	query := `
		UPDATE backup_schedules
		SET name = $2, frequency = $3, hour = $4, day_of_week = $5, site_id = $6,
		    enabled = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		schedule.ID, schedule.Name, schedule.Frequency, schedule.Hour,
		schedule.DayOfWeek, schedule.SiteID, schedule.Enabled,
	).Scan(&schedule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pgx.ErrNoRows
	}
	return err
}

// Delete removes a schedule.
func (r *scheduleRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM backup_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// TouchLastRun stamps last_run_at when a schedule fires.
func (r *scheduleRepo) TouchLastRun(ctx context.Context, id int64, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE backup_schedules SET last_run_at = $2 WHERE id = $1`, id, at)
	return err
}

// Compile-time check
var _ ScheduleRepository = (*scheduleRepo)(nil)
