package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agncf/netfortress/internal/models"
	"github.com/agncf/netfortress/internal/repository"
)

// stubSites is an in-memory SiteRepository.
type stubSites struct {
	mu    sync.Mutex
	seq   int64
	sites map[int64]*models.Site
}

func newStubSites() *stubSites {
	return &stubSites{sites: make(map[int64]*models.Site)}
}

func (s *stubSites) Create(_ context.Context, site *models.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	site.ID = s.seq
	s.sites[site.ID] = site
	return nil
}

func (s *stubSites) GetByID(_ context.Context, id int64) (*models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sites[id], nil
}

func (s *stubSites) GetByCode(_ context.Context, code string) (*models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range s.sites {
		if site.Code == code {
			return site, nil
		}
	}
	return nil, nil
}

func (s *stubSites) List(_ context.Context) ([]*models.Site, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	return out, nil
}

func (s *stubSites) Update(_ context.Context, site *models.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[site.ID]; !ok {
		return fmt.Errorf("site %d not found", site.ID)
	}
	s.sites[site.ID] = site
	return nil
}

func (s *stubSites) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return fmt.Errorf("site %d not found", id)
	}
	delete(s.sites, id)
	return nil
}

// stubCredentials is an in-memory CredentialRepository.
type stubCredentials struct {
	mu    sync.Mutex
	seq   int64
	creds map[int64]*models.CredentialSet
}

func newStubCredentials() *stubCredentials {
	return &stubCredentials{creds: make(map[int64]*models.CredentialSet)}
}

func (s *stubCredentials) Create(_ context.Context, cred *models.CredentialSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cred.ID = s.seq
	s.creds[cred.ID] = cred
	return nil
}

func (s *stubCredentials) GetByID(_ context.Context, id int64) (*models.CredentialSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds[id], nil
}

func (s *stubCredentials) List(_ context.Context) ([]*models.CredentialSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.CredentialSet, 0, len(s.creds))
	for _, cred := range s.creds {
		out = append(out, cred)
	}
	return out, nil
}

func (s *stubCredentials) Update(_ context.Context, cred *models.CredentialSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[cred.ID]; !ok {
		return fmt.Errorf("credential set %d not found", cred.ID)
	}
	s.creds[cred.ID] = cred
	return nil
}

func (s *stubCredentials) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return fmt.Errorf("credential set %d not found", id)
	}
	delete(s.creds, id)
	return nil
}

// stubDevices is an in-memory DeviceRepository.
type stubDevices struct {
	mu      sync.Mutex
	seq     int64
	devices map[int64]*models.Device
}

func newStubDevices() *stubDevices {
	return &stubDevices{devices: make(map[int64]*models.Device)}
}

func (s *stubDevices) Create(_ context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	device.ID = s.seq
	s.devices[device.ID] = device
	return nil
}

func (s *stubDevices) GetByID(_ context.Context, id int64) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id], nil
}

func (s *stubDevices) List(_ context.Context, siteID *int64) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Device
	for _, d := range s.devices {
		if siteID == nil || d.SiteID == *siteID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubDevices) ListEnabledIDs(_ context.Context, siteID *int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, d := range s.devices {
		if !d.Enabled {
			continue
		}
		if siteID != nil && d.SiteID != *siteID {
			continue
		}
		out = append(out, d.ID)
	}
	return out, nil
}

func (s *stubDevices) Update(_ context.Context, device *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[device.ID]; !ok {
		return fmt.Errorf("device %d not found", device.ID)
	}
	s.devices[device.ID] = device
	return nil
}

func (s *stubDevices) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("device %d not found", id)
	}
	delete(s.devices, id)
	return nil
}

func (s *stubDevices) ListInventory(_ context.Context, _ []int64) ([]repository.InventoryRow, error) {
	return nil, nil
}

// stubJobs is an in-memory JobRepository.
type stubJobs struct {
	mu      sync.Mutex
	seq     int64
	jobs    map[int64]*models.BackupJob
	results map[int64][]*models.BackupResult
}

func newStubJobs() *stubJobs {
	return &stubJobs{
		jobs:    make(map[int64]*models.BackupJob),
		results: make(map[int64][]*models.BackupResult),
	}
}

func (s *stubJobs) Create(_ context.Context, job *models.BackupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	job.ID = s.seq
	job.TriggeredAt = time.Now().UTC()
	s.jobs[job.ID] = job
	return nil
}

func (s *stubJobs) GetByID(_ context.Context, id int64) (*models.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id], nil
}

func (s *stubJobs) List(_ context.Context, limit int) ([]*models.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BackupJob
	for _, job := range s.jobs {
		if len(out) >= limit {
			break
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *stubJobs) MarkRunning(_ context.Context, id int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = models.JobStatusRunning
		job.StartedAt = &startedAt
	}
	return nil
}

func (s *stubJobs) Finalize(_ context.Context, id int64, status models.JobStatus, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.CompletedAt = &completedAt
	}
	return nil
}

func (s *stubJobs) ReconcileOrphans(_ context.Context) ([]int64, error) {
	return nil, nil
}

func (s *stubJobs) RecordResult(_ context.Context, result *models.BackupResult) (repository.JobCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.JobID] = append(s.results[result.JobID], result)
	job := s.jobs[result.JobID]
	job.CompletedDevices++
	if result.Status == models.ResultStatusFailed {
		job.FailedDevices++
	}
	return repository.JobCounters{
		Completed: job.CompletedDevices,
		Failed:    job.FailedDevices,
		Total:     job.TotalDevices,
	}, nil
}

func (s *stubJobs) ListResultsByJob(_ context.Context, jobID int64) ([]*models.BackupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[jobID], nil
}

func (s *stubJobs) ListResultsByDevice(_ context.Context, deviceID int64, limit int) ([]*models.BackupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BackupResult
	for _, results := range s.results {
		for _, result := range results {
			if result.DeviceID == deviceID && len(out) < limit {
				out = append(out, result)
			}
		}
	}
	return out, nil
}

// stubSchedules is an in-memory ScheduleRepository.
type stubSchedules struct {
	mu        sync.Mutex
	seq       int64
	schedules map[int64]*models.BackupSchedule
}

func newStubSchedules() *stubSchedules {
	return &stubSchedules{schedules: make(map[int64]*models.BackupSchedule)}
}

func (s *stubSchedules) Create(_ context.Context, schedule *models.BackupSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	schedule.ID = s.seq
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubSchedules) GetByID(_ context.Context, id int64) (*models.BackupSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedules[id], nil
}

func (s *stubSchedules) List(_ context.Context) ([]*models.BackupSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.BackupSchedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule)
	}
	return out, nil
}

func (s *stubSchedules) ListEnabled(_ context.Context) ([]*models.BackupSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.BackupSchedule
	for _, schedule := range s.schedules {
		if schedule.Enabled {
			out = append(out, schedule)
		}
	}
	return out, nil
}

func (s *stubSchedules) Update(_ context.Context, schedule *models.BackupSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return fmt.Errorf("schedule %d not found", schedule.ID)
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *stubSchedules) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("schedule %d not found", id)
	}
	delete(s.schedules, id)
	return nil
}

func (s *stubSchedules) TouchLastRun(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schedule, ok := s.schedules[id]; ok {
		schedule.LastRunAt = &at
	}
	return nil
}

var (
	_ repository.SiteRepository       = (*stubSites)(nil)
	_ repository.CredentialRepository = (*stubCredentials)(nil)
	_ repository.DeviceRepository     = (*stubDevices)(nil)
	_ repository.JobRepository        = (*stubJobs)(nil)
	_ repository.ScheduleRepository   = (*stubSchedules)(nil)
)
