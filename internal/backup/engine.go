// Package backup runs configuration backup jobs across CLI and API devices.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agncf/netfortress/internal/config"
	"github.com/agncf/netfortress/internal/inventory"
	"github.com/agncf/netfortress/internal/models"
	"github.com/agncf/netfortress/internal/repository"
	"github.com/agncf/netfortress/internal/scrub"
)

// noCredentialsMessage is recorded for devices with neither a credential set
// nor the global fallback pair.
const noCredentialsMessage = "no credentials available (device credential set and global fallback both missing)"

// GiteaStore is the slice of the Gitea client the engine needs.
type GiteaStore interface {
	EnsureRepo(ctx context.Context, siteCode, repoName string) (string, error)
	CommitConfig(ctx context.Context, repo, hostname, configText, message string) (string, error)
}

// Engine orchestrates one backup job from running to terminal state:
// snapshot the inventory, fan out to the CLI worker pool and the API
// semaphore, scrub and commit each config, and stream progress events.
type Engine struct {
	jobs        repository.JobRepository
	snapshotter *inventory.Snapshotter
	gitea       GiteaStore
	bus         *Bus

	cli ConfigFetcher
	api ConfigFetcher

	cliWorkers     int
	apiConcurrency int
}

// NewEngine wires an engine with the production workers.
func NewEngine(
	jobs repository.JobRepository,
	snapshotter *inventory.Snapshotter,
	gitea GiteaStore,
	bus *Bus,
	cfg *config.BackupConfig,
) *Engine {
	return &Engine{
		jobs:           jobs,
		snapshotter:    snapshotter,
		gitea:          gitea,
		bus:            bus,
		cli:            NewCLIWorker(),
		api:            NewAPIWorker(),
		cliWorkers:     cfg.CLIWorkers,
		apiConcurrency: cfg.APIConcurrency,
	}
}

// Run executes the job against the given devices (all enabled devices when
// deviceIDs is empty). It is the only writer of the job's row until the job
// reaches a terminal state. Intended to be called on its own goroutine.
func (e *Engine) Run(ctx context.Context, jobID int64, deviceIDs []int64) {
	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		slog.Error("backup job not found, aborting", "job_id", jobID, "error", err)
		return
	}

	if err := e.jobs.MarkRunning(ctx, jobID, time.Now().UTC()); err != nil {
		slog.Error("failed to mark job running", "job_id", jobID, "error", err)
		return
	}

	status := models.JobStatusComplete
	if err := e.dispatch(ctx, job, deviceIDs); err != nil {
		slog.Error("backup job failed", "job_id", jobID, "error", err)
		status = models.JobStatusFailed
	}

	if err := e.jobs.Finalize(ctx, jobID, status, time.Now().UTC()); err != nil {
		slog.Error("failed to finalize job", "job_id", jobID, "error", err)
	}
	backupJobsTotal.WithLabelValues(string(status)).Inc()

	// Terminal event carries the final counters.
	final, err := e.jobs.GetByID(ctx, jobID)
	if err != nil || final == nil {
		slog.Error("failed to load final job state", "job_id", jobID, "error", err)
		e.bus.Publish(Event{JobID: jobID, Status: string(status)})
		return
	}
	e.bus.Publish(Event{
		JobID:     jobID,
		Completed: final.CompletedDevices,
		Total:     final.TotalDevices,
		Failed:    final.FailedDevices,
		Status:    string(final.Status),
	})

	slog.Info("backup job finished",
		"job_id", jobID,
		"status", final.Status,
		"completed", final.CompletedDevices,
		"failed", final.FailedDevices,
		"total", final.TotalDevices)
}

// dispatch partitions the snapshot into CLI and API groups and drives both
// to completion. Per-device failures are recorded, not returned; only an
// orchestration error (inventory load) fails the job itself.
func (e *Engine) dispatch(ctx context.Context, job *models.BackupJob, deviceIDs []int64) error {
	snaps, err := e.snapshotter.Load(ctx, deviceIDs)
	if err != nil {
		return err
	}

	var cliDevices, apiDevices []inventory.Snapshot
	for _, snap := range snaps {
		switch {
		case snap.CredentialError != "":
			e.recordFailure(ctx, job, snap, snap.CredentialError, nil)
		case !snap.HasCredentials:
			e.recordFailure(ctx, job, snap, noCredentialsMessage, nil)
		case snap.IsAPIDevice:
			apiDevices = append(apiDevices, snap)
		default:
			cliDevices = append(cliDevices, snap)
		}
	}

	var wg sync.WaitGroup

	if len(cliDevices) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runPool(ctx, job, cliDevices, e.cli, e.cliWorkers)
		}()
	}
	if len(apiDevices) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runPool(ctx, job, apiDevices, e.api, e.apiConcurrency)
		}()
	}
	wg.Wait()
	return nil
}

// runPool drains the device list with at most `workers` concurrent fetches.
func (e *Engine) runPool(ctx context.Context, job *models.BackupJob, devices []inventory.Snapshot, fetcher ConfigFetcher, workers int) {
	if workers > len(devices) {
		workers = len(devices)
	}

	queue := make(chan inventory.Snapshot)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range queue {
				e.backupDevice(ctx, job, snap, fetcher)
			}
		}()
	}

	for _, snap := range devices {
		queue <- snap
	}
	close(queue)
	wg.Wait()
}

// backupDevice runs the full per-device pipeline:
// fetch → scrub → hash → ensure repo → commit → record → publish.
func (e *Engine) backupDevice(ctx context.Context, job *models.BackupJob, snap inventory.Snapshot, fetcher ConfigFetcher) {
	devicesInFlight.Inc()
	defer devicesInFlight.Dec()
	start := time.Now()

	raw, err := fetcher.Fetch(snap)
	if err != nil {
		e.recordFailure(ctx, job, snap, err.Error(), durationSince(start))
		return
	}

	scrubbed := scrub.Scrub(raw, snap.Platform)
	sum := sha256.Sum256([]byte(scrubbed))
	configHash := hex.EncodeToString(sum[:])

	repo, err := e.gitea.EnsureRepo(ctx, snap.SiteCode, snap.GiteaRepoName)
	if err != nil {
		e.recordFailure(ctx, job, snap, err.Error(), durationSince(start))
		return
	}

	commitSHA, err := e.gitea.CommitConfig(ctx, repo, snap.Hostname, scrubbed,
		fmt.Sprintf("Automated backup: %s", snap.Hostname))
	if err != nil {
		e.recordFailure(ctx, job, snap, err.Error(), durationSince(start))
		return
	}

	duration := durationSince(start)
	result := &models.BackupResult{
		JobID:           job.ID,
		DeviceID:        snap.DeviceID,
		Status:          models.ResultStatusSuccess,
		ConfigHash:      &configHash,
		GiteaCommitSHA:  &commitSHA,
		DurationSeconds: duration,
	}

	counters, err := e.jobs.RecordResult(ctx, result)
	if err != nil {
		slog.Error("failed to record backup result",
			"job_id", job.ID, "device_id", snap.DeviceID, "error", err)
		return
	}

	backupResultsTotal.WithLabelValues(string(models.ResultStatusSuccess), string(snap.Platform)).Inc()
	backupDuration.WithLabelValues(string(snap.Platform)).Observe(*duration)

	slog.Info("committed backup",
		"job_id", job.ID,
		"hostname", snap.Hostname,
		"commit_sha", shortSHA(commitSHA))

	e.publishProgress(job.ID, counters)
}

func (e *Engine) recordFailure(ctx context.Context, job *models.BackupJob, snap inventory.Snapshot, message string, duration *float64) {
	result := &models.BackupResult{
		JobID:           job.ID,
		DeviceID:        snap.DeviceID,
		Status:          models.ResultStatusFailed,
		ErrorMessage:    &message,
		DurationSeconds: duration,
	}

	counters, err := e.jobs.RecordResult(ctx, result)
	if err != nil {
		slog.Error("failed to record backup failure",
			"job_id", job.ID, "device_id", snap.DeviceID, "error", err)
		return
	}

	backupResultsTotal.WithLabelValues(string(models.ResultStatusFailed), string(snap.Platform)).Inc()

	slog.Warn("device backup failed",
		"job_id", job.ID,
		"hostname", snap.Hostname,
		"error", message)

	e.publishProgress(job.ID, counters)
}

func (e *Engine) publishProgress(jobID int64, counters repository.JobCounters) {
	e.bus.Publish(Event{
		JobID:     jobID,
		Completed: counters.Completed,
		Total:     counters.Total,
		Failed:    counters.Failed,
		Status:    string(models.JobStatusRunning),
	})
}

func durationSince(start time.Time) *float64 {
	d := time.Since(start).Seconds()
	return &d
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
