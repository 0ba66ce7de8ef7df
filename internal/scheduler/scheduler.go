// Package scheduler fires recurring backup jobs from cron entries.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agncf/netfortress/internal/models"
	"github.com/agncf/netfortress/internal/repository"
)

// JobRunner executes one backup job to completion. Satisfied by
// backup.Engine.
type JobRunner interface {
	Run(ctx context.Context, jobID int64, deviceIDs []int64)
}

// Scheduler keeps one cron entry per enabled BackupSchedule. All cron
// expressions are evaluated in UTC; schedule hours are defined as UTC hours.
type Scheduler struct {
	schedules repository.ScheduleRepository
	devices   repository.DeviceRepository
	jobs      repository.JobRepository
	runner    JobRunner

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// New creates a scheduler. Call Start to load enabled schedules and begin
// firing.
func New(
	schedules repository.ScheduleRepository,
	devices repository.DeviceRepository,
	jobs repository.JobRepository,
	runner JobRunner,
) *Scheduler {
	return &Scheduler{
		schedules: schedules,
		devices:   devices,
		jobs:      jobs,
		runner:    runner,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		entries:   make(map[int64]cron.EntryID),
	}
}

// cronSpec converts a schedule's frequency fields to a five-field cron
// expression. The schedule model counts days from Monday=0; cron counts
// from Sunday=0.
func cronSpec(s *models.BackupSchedule) (string, error) {
	switch s.Frequency {
	case models.FrequencyHourly:
		return "0 * * * *", nil
	case models.FrequencyDaily:
		return fmt.Sprintf("0 %d * * *", s.Hour), nil
	case models.FrequencyWeekly:
		return fmt.Sprintf("0 %d * * %d", s.Hour, (s.DayOfWeek+1)%7), nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s.Frequency)
	}
}

// Start loads every enabled schedule and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	schedules, err := s.schedules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := s.Register(schedule); err != nil {
			slog.Error("failed to register schedule",
				"schedule_id", schedule.ID, "name", schedule.Name, "error", err)
		}
	}

	s.cron.Start()
	slog.Info("scheduler started", "active_schedules", len(s.entries))
	return nil
}

// Stop halts the cron loop. The returned context is done once in-flight
// entry functions have returned.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Register adds (or replaces) the cron entry for a schedule. Disabled
// schedules are unregistered instead.
func (s *Scheduler) Register(schedule *models.BackupSchedule) error {
	if !schedule.Enabled {
		s.Unregister(schedule.ID)
		return nil
	}

	spec, err := cronSpec(schedule)
	if err != nil {
		return err
	}

	id := schedule.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.fire(id) })
	if err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}

	s.mu.Lock()
	if old, ok := s.entries[id]; ok {
		s.cron.Remove(old)
	}
	s.entries[id] = entryID
	s.mu.Unlock()

	slog.Info("registered schedule", "schedule_id", id, "name", schedule.Name, "cron", spec)
	return nil
}

// Unregister removes a schedule's cron entry if present.
func (s *Scheduler) Unregister(scheduleID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, scheduleID)
		slog.Info("unregistered schedule", "schedule_id", scheduleID)
	}
}

// Active returns the number of live cron entries.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire runs one scheduled backup. The schedule is reloaded first so an
// entry whose row was disabled or deleted between reconciliations is a
// no-op rather than a stale job.
func (s *Scheduler) fire(scheduleID int64) {
	ctx := context.Background()

	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		slog.Error("failed to load schedule on fire", "schedule_id", scheduleID, "error", err)
		return
	}
	if schedule == nil || !schedule.Enabled {
		slog.Warn("skipping fire of missing or disabled schedule", "schedule_id", scheduleID)
		s.Unregister(scheduleID)
		return
	}

	deviceIDs, err := s.devices.ListEnabledIDs(ctx, schedule.SiteID)
	if err != nil {
		slog.Error("failed to list devices for schedule",
			"schedule_id", scheduleID, "error", err)
		return
	}
	if len(deviceIDs) == 0 {
		slog.Warn("schedule fired with no enabled devices",
			"schedule_id", scheduleID, "name", schedule.Name)
		return
	}

	job := &models.BackupJob{
		TriggeredBy:  fmt.Sprintf("schedule:%s", schedule.Name),
		Status:       models.JobStatusRunning,
		TotalDevices: len(deviceIDs),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		slog.Error("failed to create scheduled job", "schedule_id", scheduleID, "error", err)
		return
	}

	if err := s.schedules.TouchLastRun(ctx, scheduleID, time.Now().UTC()); err != nil {
		slog.Error("failed to stamp last_run_at", "schedule_id", scheduleID, "error", err)
	}

	slog.Info("schedule fired",
		"schedule_id", scheduleID,
		"name", schedule.Name,
		"job_id", job.ID,
		"devices", len(deviceIDs))

	s.runner.Run(ctx, job.ID, deviceIDs)
}
