package repository

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agncf/netfortress/internal/models"
)

// Error messages are stored verbatim up to this many bytes.
const maxErrorMessageLen = 4096

// JobCounters is the snapshot of a job's progress counters returned by
// RecordResult, taken inside the same transaction as the counter update so
// published progress events are consistent under concurrency.
type JobCounters struct {
	Completed int
	Failed    int
	Total     int
}

// JobRepository defines the interface for backup job and result operations.
// The engine is the only writer of a job between start and terminal state.
type JobRepository interface {
	Create(ctx context.Context, job *models.BackupJob) error
	GetByID(ctx context.Context, id int64) (*models.BackupJob, error)
	List(ctx context.Context, limit int) ([]*models.BackupJob, error)
	MarkRunning(ctx context.Context, id int64, startedAt time.Time) error
	Finalize(ctx context.Context, id int64, status models.JobStatus, completedAt time.Time) error

	// ReconcileOrphans fails every job left in running state by a prior
	// process and returns the affected job IDs.
	ReconcileOrphans(ctx context.Context) ([]int64, error)

	// RecordResult appends a BackupResult and atomically increments the
	// job's counters in the same transaction.
	RecordResult(ctx context.Context, result *models.BackupResult) (JobCounters, error)

	ListResultsByJob(ctx context.Context, jobID int64) ([]*models.BackupResult, error)
	ListResultsByDevice(ctx context.Context, deviceID int64, limit int) ([]*models.BackupResult, error)
}

type jobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new backup job repository.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepo{pool: pool}
}

// Create inserts a new backup job in running state.
func (r *jobRepo) Create(ctx context.Context, job *models.BackupJob) error {
	query := `
		INSERT INTO backup_jobs (triggered_by, status, total_devices)
		VALUES ($1, $2, $3)
		RETURNING id, triggered_at, completed_devices, failed_devices`

	if job.Status == "" {
		job.Status = models.JobStatusRunning
	}

	return r.pool.QueryRow(ctx, query, job.TriggeredBy, job.Status, job.TotalDevices).
		Scan(&job.ID, &job.TriggeredAt, &job.CompletedDevices, &job.FailedDevices)
}

// GetByID retrieves a backup job by ID.
func (r *jobRepo) GetByID(ctx context.Context, id int64) (*models.BackupJob, error) {
	query := `
		SELECT id, triggered_at, triggered_by, status, total_devices,
		       completed_devices, failed_devices, started_at, completed_at
		FROM backup_jobs WHERE id = $1`

	var job models.BackupJob
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.TriggeredAt, &job.TriggeredBy, &job.Status, &job.TotalDevices,
		&job.CompletedDevices, &job.FailedDevices, &job.StartedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves the most recent jobs.
func (r *jobRepo) List(ctx context.Context, limit int) ([]*models.BackupJob, error) {
	query := `
		SELECT id, triggered_at, triggered_by, status, total_devices,
		       completed_devices, failed_devices, started_at, completed_at
		FROM backup_jobs
		ORDER BY triggered_at DESC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.BackupJob
	for rows.Next() {
		var job models.BackupJob
		if err := rows.Scan(
			&job.ID, &job.TriggeredAt, &job.TriggeredBy, &job.Status, &job.TotalDevices,
			&job.CompletedDevices, &job.FailedDevices, &job.StartedAt, &job.CompletedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// MarkRunning sets started_at and the running status.
func (r *jobRepo) MarkRunning(ctx context.Context, id int64, startedAt time.Time) error {
	query := `
		UPDATE backup_jobs
		SET status = $2, started_at = $3
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, models.JobStatusRunning, startedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Finalize transitions a job to its terminal state and stamps completed_at.
// A job already in a terminal state is left untouched.
func (r *jobRepo) Finalize(ctx context.Context, id int64, status models.JobStatus, completedAt time.Time) error {
	query := `
		UPDATE backup_jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = 'running'`

	_, err := r.pool.Exec(ctx, query, id, status, completedAt)
	return err
}

// ReconcileOrphans fails jobs orphaned by a process restart.
func (r *jobRepo) ReconcileOrphans(ctx context.Context) ([]int64, error) {
	query := `
		UPDATE backup_jobs
		SET status = 'failed', completed_at = now()
		WHERE status = 'running'
		RETURNING id`

	rows, err := r.pool.Query(ctx, query)
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

// RecordResult appends the result row and increments the job counters in one
// transaction, so invariant "completed = count(results)" holds under any
// interleaving of workers.
func (r *jobRepo) RecordResult(ctx context.Context, result *models.BackupResult) (JobCounters, error) {
	if result.ErrorMessage != nil {
		truncated := truncateErrorMessage(*result.ErrorMessage)
		result.ErrorMessage = &truncated
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return JobCounters{}, err
	}
	defer tx.Rollback(ctx)

	insert := `
		INSERT INTO backup_results (job_id, device_id, status, config_hash, gitea_commit_sha,
		                            error_message, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, backed_up_at`

	err = tx.QueryRow(ctx, insert,
		result.JobID, result.DeviceID, result.Status, result.ConfigHash,
		result.GiteaCommitSHA, result.ErrorMessage, result.DurationSeconds,
	).Scan(&result.ID, &result.BackedUpAt)
	if err != nil {
		return JobCounters{}, err
	}

	failedInc := 0
	if result.Status == models.ResultStatusFailed {
		failedInc = 1
	}

	update := `
		UPDATE backup_jobs
		SET completed_devices = completed_devices + 1,
		    failed_devices = failed_devices + $2
		WHERE id = $1
		RETURNING completed_devices, failed_devices, total_devices`

	var counters JobCounters
	if err := tx.QueryRow(ctx, update, result.JobID, failedInc).
		Scan(&counters.Completed, &counters.Failed, &counters.Total); err != nil {
		return JobCounters{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return JobCounters{}, err
	}
	return counters, nil
}

// truncateErrorMessage caps a message at maxErrorMessageLen bytes on a rune
// boundary. Cutting mid-rune would produce invalid UTF-8, which Postgres
// rejects for text columns.
func truncateErrorMessage(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// ListResultsByJob retrieves every result of a job in completion order.
func (r *jobRepo) ListResultsByJob(ctx context.Context, jobID int64) ([]*models.BackupResult, error) {
	query := `
		SELECT id, job_id, device_id, status, config_hash, gitea_commit_sha,
		       error_message, duration_seconds, backed_up_at
		FROM backup_results
		WHERE job_id = $1
		ORDER BY id`

	return r.listResults(ctx, query, jobID)
}

// ListResultsByDevice retrieves a device's most recent results.
func (r *jobRepo) ListResultsByDevice(ctx context.Context, deviceID int64, limit int) ([]*models.BackupResult, error) {
	query := `
		SELECT id, job_id, device_id, status, config_hash, gitea_commit_sha,
		       error_message, duration_seconds, backed_up_at
		FROM backup_results
		WHERE device_id = $1
		ORDER BY backed_up_at DESC
		LIMIT $2`

	return r.listResults(ctx, query, deviceID, limit)
}

func (r *jobRepo) listResults(ctx context.Context, query string, args ...any) ([]*models.BackupResult, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.BackupResult
	for rows.Next() {
		var res models.BackupResult
		if err := rows.Scan(
			&res.ID, &res.JobID, &res.DeviceID, &res.Status, &res.ConfigHash,
			&res.GiteaCommitSHA, &res.ErrorMessage, &res.DurationSeconds, &res.BackedUpAt,
		); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// Compile-time check
var _ JobRepository = (*jobRepo)(nil)
