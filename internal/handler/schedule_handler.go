package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agncf/netfortress/internal/models"
	apierrors "github.com/agncf/netfortress/internal/pkg/errors"
	"github.com/agncf/netfortress/internal/pkg/response"
	"github.com/agncf/netfortress/internal/repository"
)

// ScheduleRegistrar keeps the cron entries in sync with schedule rows.
type ScheduleRegistrar interface {
	Register(schedule *models.BackupSchedule) error
	Unregister(scheduleID int64)
}

// ScheduleHandler handles recurring backup schedule requests. Every mutation
// re-registers the schedule's cron entry so the database row and the live
// entry can't drift apart.
type ScheduleHandler struct {
	schedules repository.ScheduleRepository
	registrar ScheduleRegistrar
	validate  *validator.Validate
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(schedules repository.ScheduleRepository, registrar ScheduleRegistrar) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		registrar: registrar,
		validate:  validator.New(),
	}
}

// Routes returns a chi router with schedule routes.
func (h *ScheduleHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/toggle", h.Toggle)

	return r
}

// ScheduleRequest is the HTTP request body for creating or updating a
// schedule. Hour is UTC; DayOfWeek counts from Monday = 0 and only matters
// for weekly schedules.
type ScheduleRequest struct {
	Name      string `json:"name" validate:"required"`
	Frequency string `json:"frequency" validate:"required"`
	Hour      int    `json:"hour" validate:"gte=0,lte=23"`
	DayOfWeek int    `json:"day_of_week" validate:"gte=0,lte=6"`
	SiteID    *int64 `json:"site_id,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

func (req *ScheduleRequest) toModel(id int64) (*models.BackupSchedule, *apierrors.APIError) {
	frequency := models.Frequency(req.Frequency)
	if !frequency.Valid() {
		return nil, apierrors.NewValidationError("frequency", "must be hourly, daily or weekly")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &models.BackupSchedule{
		ID:        id,
		Name:      req.Name,
		Frequency: frequency,
		Hour:      req.Hour,
		DayOfWeek: req.DayOfWeek,
		SiteID:    req.SiteID,
		Enabled:   enabled,
	}, nil
}

// Create handles POST /api/schedules
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	schedule, apiErr := req.toModel(0)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if err := h.schedules.Create(r.Context(), schedule); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.registrar.Register(schedule); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, schedule)
}

// List handles GET /api/schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.schedules.List(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, schedules)
}

// Get handles GET /api/schedules/{id}
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid schedule ID")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if schedule == nil {
		response.NotFound(w, "Schedule")
		return
	}
	response.OK(w, schedule)
}

// Update handles PUT /api/schedules/{id}
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid schedule ID")
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	schedule, apiErr := req.toModel(id)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	if err := h.schedules.Update(r.Context(), schedule); err != nil {
		response.NotFound(w, "Schedule")
		return
	}
	if err := h.registrar.Register(schedule); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, schedule)
}

// Delete handles DELETE /api/schedules/{id}
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid schedule ID")
		return
	}

	if err := h.schedules.Delete(r.Context(), id); err != nil {
		response.NotFound(w, "Schedule")
		return
	}
	h.registrar.Unregister(id)
	response.NoContent(w)
}

// Toggle handles POST /api/schedules/{id}/toggle, flipping enabled and the
// cron entry together.
func (h *ScheduleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid schedule ID")
		return
	}

	schedule, err := h.schedules.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if schedule == nil {
		response.NotFound(w, "Schedule")
		return
	}

	schedule.Enabled = !schedule.Enabled
	if err := h.schedules.Update(r.Context(), schedule); err != nil {
		response.Error(w, err)
		return
	}
	if err := h.registrar.Register(schedule); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, schedule)
}
