package models

import "time"

// JobStatus is the lifecycle state of a BackupJob.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusComplete JobStatus = "complete"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed
}

// ResultStatus is the outcome of a single device within a job.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailed  ResultStatus = "failed"
	ResultStatusSkipped ResultStatus = "skipped"
)

// BackupJob is one invocation of the engine over a set of devices.
// The engine owns all mutation of a job until it reaches a terminal state.
type BackupJob struct {
	ID               int64      `json:"id" db:"id"`
	TriggeredAt      time.Time  `json:"triggered_at" db:"triggered_at"`
	TriggeredBy      string     `json:"triggered_by" db:"triggered_by"`
	Status           JobStatus  `json:"status" db:"status"`
	TotalDevices     int        `json:"total_devices" db:"total_devices"`
	CompletedDevices int        `json:"completed_devices" db:"completed_devices"`
	FailedDevices    int        `json:"failed_devices" db:"failed_devices"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// BackupResult records the terminal outcome of one device in one job.
// Results are append-only within a job.
type BackupResult struct {
	ID              int64        `json:"id" db:"id"`
	JobID           int64        `json:"job_id" db:"job_id"`
	DeviceID        int64        `json:"device_id" db:"device_id"`
	Status          ResultStatus `json:"status" db:"status"`
	ConfigHash      *string      `json:"config_hash,omitempty" db:"config_hash"`
	GiteaCommitSHA  *string      `json:"gitea_commit_sha,omitempty" db:"gitea_commit_sha"`
	ErrorMessage    *string      `json:"error_message,omitempty" db:"error_message"`
	DurationSeconds *float64     `json:"duration_seconds,omitempty" db:"duration_seconds"`
	BackedUpAt      time.Time    `json:"backed_up_at" db:"backed_up_at"`
}
