package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agncf/netfortress/internal/backup"
	"github.com/agncf/netfortress/internal/models"
	apierrors "github.com/agncf/netfortress/internal/pkg/errors"
	"github.com/agncf/netfortress/internal/pkg/response"
	"github.com/agncf/netfortress/internal/repository"
)

const (
	jobListLimit       = 100
	deviceHistoryLimit = 5
	sseKeepalive       = 30 * time.Second
)

// JobRunner executes one backup job to completion.
type JobRunner interface {
	Run(ctx context.Context, jobID int64, deviceIDs []int64)
}

// DiffSource retrieves config diffs from Gitea.
type DiffSource interface {
	GetDiff(ctx context.Context, repo, hostname string) (string, error)
}

// BackupHandler handles backup job, result and progress requests.
type BackupHandler struct {
	jobs     repository.JobRepository
	devices  repository.DeviceRepository
	sites    repository.SiteRepository
	bus      *backup.Bus
	runner   JobRunner
	differ   DiffSource
	giteaOrg string
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(
	jobs repository.JobRepository,
	devices repository.DeviceRepository,
	sites repository.SiteRepository,
	bus *backup.Bus,
	runner JobRunner,
	differ DiffSource,
	giteaOrg string,
) *BackupHandler {
	return &BackupHandler{
		jobs:     jobs,
		devices:  devices,
		sites:    sites,
		bus:      bus,
		runner:   runner,
		differ:   differ,
		giteaOrg: giteaOrg,
	}
}

// Routes returns a chi router with backup routes.
func (h *BackupHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/jobs/{id}/results", h.ListJobResults)
	r.Get("/jobs/{id}/events", h.StreamEvents)
	r.Get("/device/{id}/history", h.DeviceHistory)
	r.Get("/diff/{id}", h.DeviceDiff)

	return r
}

// CreateJobRequest is the HTTP request body for triggering a backup job.
type CreateJobRequest struct {
	TriggeredBy string `json:"triggered_by"`
	SiteID      *int64 `json:"site_id,omitempty"`
}

// CreateJob handles POST /api/backups/jobs. The job row is created before
// the engine starts so the caller can immediately subscribe to its events.
func (h *BackupHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "manual"
	}

	deviceIDs, err := h.devices.ListEnabledIDs(r.Context(), req.SiteID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if len(deviceIDs) == 0 {
		response.BadRequest(w, "No devices to backup")
		return
	}

	job := &models.BackupJob{
		TriggeredBy:  req.TriggeredBy,
		Status:       models.JobStatusRunning,
		TotalDevices: len(deviceIDs),
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		response.Error(w, err)
		return
	}

	go h.runner.Run(context.Background(), job.ID, deviceIDs)

	response.Created(w, job)
}

// ListJobs handles GET /api/backups/jobs
func (h *BackupHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context(), jobListLimit)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, jobs)
}

// GetJob handles GET /api/backups/jobs/{id}
func (h *BackupHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if job == nil {
		response.NotFound(w, "Backup job")
		return
	}
	response.OK(w, job)
}

// ListJobResults handles GET /api/backups/jobs/{id}/results
func (h *BackupHandler) ListJobResults(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if job == nil {
		response.NotFound(w, "Backup job")
		return
	}

	results, err := h.jobs.ListResultsByJob(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, results)
}

// StreamEvents handles GET /api/backups/jobs/{id}/events as an SSE stream.
// A stream on a finished job emits one terminal event and closes.
func (h *BackupHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if job == nil {
		response.NotFound(w, "Backup job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if job.Status.Terminal() {
		writeSSE(w, backup.Event{
			JobID:     job.ID,
			Completed: job.CompletedDevices,
			Total:     job.TotalDevices,
			Failed:    job.FailedDevices,
			Status:    string(job.Status),
		})
		flusher.Flush()
		return
	}

	events, cancel := h.bus.Subscribe(id)
	defer cancel()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
			if event.Terminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event backup.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// DeviceHistoryResponse is the last few backup results of one device.
type DeviceHistoryResponse struct {
	DeviceID int64                  `json:"device_id"`
	Hostname string                 `json:"hostname"`
	Results  []*models.BackupResult `json:"results"`
}

// DeviceHistory handles GET /api/backups/device/{id}/history
func (h *BackupHandler) DeviceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid device ID")
		return
	}

	device, err := h.devices.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if device == nil {
		response.NotFound(w, "Device")
		return
	}

	results, err := h.jobs.ListResultsByDevice(r.Context(), id, deviceHistoryLimit)
	if err != nil {
		response.Error(w, err)
		return
	}

	response.OK(w, DeviceHistoryResponse{
		DeviceID: device.ID,
		Hostname: device.Hostname,
		Results:  results,
	})
}

// DiffResponse carries the unified diff between a device's two most recent
// backups, or a human-readable message when no diff exists.
type DiffResponse struct {
	DeviceID    int64  `json:"device_id"`
	Hostname    string `json:"hostname"`
	UnifiedDiff string `json:"unified_diff"`
}

// DeviceDiff handles GET /api/backups/diff/{id}
func (h *BackupHandler) DeviceDiff(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid device ID")
		return
	}

	device, err := h.devices.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if device == nil {
		response.NotFound(w, "Device")
		return
	}

	site, err := h.sites.GetByID(r.Context(), device.SiteID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if site == nil {
		response.NotFound(w, "Site")
		return
	}

	repo := h.giteaOrg + "/" + site.GiteaRepoName
	diff, err := h.differ.GetDiff(r.Context(), repo, device.Hostname)
	if err != nil {
		diff = fmt.Sprintf("Error retrieving diff: %v", err)
	}

	response.OK(w, DiffResponse{
		DeviceID:    device.ID,
		Hostname:    device.Hostname,
		UnifiedDiff: diff,
	})
}
