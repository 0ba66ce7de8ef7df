package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agncf/netfortress/internal/models"
	"github.com/agncf/netfortress/internal/repository"
)

func TestCronSpec(t *testing.T) {
	cases := []struct {
		name     string
		schedule models.BackupSchedule
		want     string
	}{
		{"hourly fires on the hour", models.BackupSchedule{Frequency: models.FrequencyHourly, Hour: 15}, "0 * * * *"},
		{"daily at 02 UTC", models.BackupSchedule{Frequency: models.FrequencyDaily, Hour: 2}, "0 2 * * *"},
		{"weekly monday maps to cron 1", models.BackupSchedule{Frequency: models.FrequencyWeekly, Hour: 3, DayOfWeek: 0}, "0 3 * * 1"},
		{"weekly sunday wraps to cron 0", models.BackupSchedule{Frequency: models.FrequencyWeekly, Hour: 3, DayOfWeek: 6}, "0 3 * * 0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec, err := cronSpec(&tc.schedule)
			require.NoError(t, err)
			assert.Equal(t, tc.want, spec)
		})
	}

	_, err := cronSpec(&models.BackupSchedule{Frequency: "fortnightly"})
	assert.Error(t, err)
}

type memSchedules struct {
	mu       sync.Mutex
	byID     map[int64]*models.BackupSchedule
	lastRuns map[int64]time.Time
}

func (m *memSchedules) Create(ctx context.Context, s *models.BackupSchedule) error { return nil }
func (m *memSchedules) GetByID(ctx context.Context, id int64) (*models.BackupSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}
func (m *memSchedules) List(ctx context.Context) ([]*models.BackupSchedule, error) {
	return nil, nil
}
func (m *memSchedules) ListEnabled(ctx context.Context) ([]*models.BackupSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.BackupSchedule
	for _, s := range m.byID {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}
func (m *memSchedules) Update(ctx context.Context, s *models.BackupSchedule) error { return nil }
func (m *memSchedules) Delete(ctx context.Context, id int64) error                 { return nil }
func (m *memSchedules) TouchLastRun(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRuns[id] = at
	return nil
}

type memDevices struct {
	ids []int64
}

func (m *memDevices) Create(ctx context.Context, d *models.Device) error { return nil }
func (m *memDevices) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	return nil, nil
}
func (m *memDevices) List(ctx context.Context, siteID *int64) ([]*models.Device, error) {
	return nil, nil
}
func (m *memDevices) ListEnabledIDs(ctx context.Context, siteID *int64) ([]int64, error) {
	return m.ids, nil
}
func (m *memDevices) Update(ctx context.Context, d *models.Device) error { return nil }
func (m *memDevices) Delete(ctx context.Context, id int64) error         { return nil }
func (m *memDevices) ListInventory(ctx context.Context, deviceIDs []int64) ([]repository.InventoryRow, error) {
	return nil, nil
}

type memJobs struct {
	mu      sync.Mutex
	nextID  int64
	created []*models.BackupJob
}

func (m *memJobs) Create(ctx context.Context, job *models.BackupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	cp := *job
	m.created = append(m.created, &cp)
	return nil
}
func (m *memJobs) GetByID(ctx context.Context, id int64) (*models.BackupJob, error) {
	return nil, nil
}
func (m *memJobs) List(ctx context.Context, limit int) ([]*models.BackupJob, error) {
	return nil, nil
}
func (m *memJobs) MarkRunning(ctx context.Context, id int64, startedAt time.Time) error { return nil }
func (m *memJobs) Finalize(ctx context.Context, id int64, status models.JobStatus, completedAt time.Time) error {
	return nil
}
func (m *memJobs) ReconcileOrphans(ctx context.Context) ([]int64, error) { return nil, nil }
func (m *memJobs) RecordResult(ctx context.Context, result *models.BackupResult) (repository.JobCounters, error) {
	return repository.JobCounters{}, nil
}
func (m *memJobs) ListResultsByJob(ctx context.Context, jobID int64) ([]*models.BackupResult, error) {
	return nil, nil
}
func (m *memJobs) ListResultsByDevice(ctx context.Context, deviceID int64, limit int) ([]*models.BackupResult, error) {
	return nil, nil
}

type recordingRunner struct {
	mu   sync.Mutex
	runs []struct {
		jobID     int64
		deviceIDs []int64
	}
}

func (r *recordingRunner) Run(ctx context.Context, jobID int64, deviceIDs []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, struct {
		jobID     int64
		deviceIDs []int64
	}{jobID, deviceIDs})
}

func newTestScheduler(schedules *memSchedules, devices *memDevices, jobs *memJobs, runner *recordingRunner) *Scheduler {
	return New(schedules, devices, jobs, runner)
}

func TestRegisterAndUnregister(t *testing.T) {
	s := newTestScheduler(
		&memSchedules{byID: map[int64]*models.BackupSchedule{}, lastRuns: map[int64]time.Time{}},
		&memDevices{}, &memJobs{}, &recordingRunner{})

	schedule := &models.BackupSchedule{ID: 1, Name: "nightly", Frequency: models.FrequencyDaily, Hour: 2, Enabled: true}
	require.NoError(t, s.Register(schedule))
	assert.Equal(t, 1, s.Active())

	// Re-registering replaces the entry rather than duplicating it.
	require.NoError(t, s.Register(schedule))
	assert.Equal(t, 1, s.Active())

	// Registering a disabled schedule removes it.
	schedule.Enabled = false
	require.NoError(t, s.Register(schedule))
	assert.Equal(t, 0, s.Active())
}

func TestStartLoadsEnabledSchedules(t *testing.T) {
	schedules := &memSchedules{
		byID: map[int64]*models.BackupSchedule{
			1: {ID: 1, Name: "hourly", Frequency: models.FrequencyHourly, Enabled: true},
			2: {ID: 2, Name: "off", Frequency: models.FrequencyDaily, Hour: 4, Enabled: false},
		},
		lastRuns: map[int64]time.Time{},
	}
	s := newTestScheduler(schedules, &memDevices{}, &memJobs{}, &recordingRunner{})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, 1, s.Active())
}

func TestFireCreatesJobAndRuns(t *testing.T) {
	schedules := &memSchedules{
		byID: map[int64]*models.BackupSchedule{
			5: {ID: 5, Name: "nightly", Frequency: models.FrequencyDaily, Hour: 2, Enabled: true},
		},
		lastRuns: map[int64]time.Time{},
	}
	devices := &memDevices{ids: []int64{10, 11, 12}}
	jobs := &memJobs{}
	runner := &recordingRunner{}

	s := newTestScheduler(schedules, devices, jobs, runner)
	s.fire(5)

	require.Len(t, jobs.created, 1)
	job := jobs.created[0]
	assert.Equal(t, "schedule:nightly", job.TriggeredBy)
	assert.Equal(t, 3, job.TotalDevices)

	require.Len(t, runner.runs, 1)
	assert.Equal(t, job.ID, runner.runs[0].jobID)
	assert.Equal(t, []int64{10, 11, 12}, runner.runs[0].deviceIDs)

	_, touched := schedules.lastRuns[5]
	assert.True(t, touched, "last_run_at must be stamped")
}

func TestFireSkipsDisabledSchedule(t *testing.T) {
	schedules := &memSchedules{
		byID: map[int64]*models.BackupSchedule{
			6: {ID: 6, Name: "paused", Frequency: models.FrequencyHourly, Enabled: false},
		},
		lastRuns: map[int64]time.Time{},
	}
	jobs := &memJobs{}
	runner := &recordingRunner{}

	s := newTestScheduler(schedules, &memDevices{ids: []int64{1}}, jobs, runner)
	s.fire(6)

	assert.Empty(t, jobs.created)
	assert.Empty(t, runner.runs)
}

func TestFireSkipsEmptyDeviceSet(t *testing.T) {
	schedules := &memSchedules{
		byID: map[int64]*models.BackupSchedule{
			7: {ID: 7, Name: "empty-site", Frequency: models.FrequencyHourly, Enabled: true},
		},
		lastRuns: map[int64]time.Time{},
	}
	jobs := &memJobs{}
	runner := &recordingRunner{}

	s := newTestScheduler(schedules, &memDevices{}, jobs, runner)
	s.fire(7)

	assert.Empty(t, jobs.created)
	assert.Empty(t, runner.runs)
}
