// Package handler provides HTTP handlers for the backup API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/agncf/netfortress/internal/models"
	apierrors "github.com/agncf/netfortress/internal/pkg/errors"
	"github.com/agncf/netfortress/internal/pkg/response"
	"github.com/agncf/netfortress/internal/repository"
	"github.com/agncf/netfortress/internal/secrets"
)

// InventoryHandler handles site, credential set and device requests.
type InventoryHandler struct {
	sites       repository.SiteRepository
	credentials repository.CredentialRepository
	devices     repository.DeviceRepository
	cipher      *secrets.Cipher
	validate    *validator.Validate
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(
	sites repository.SiteRepository,
	credentials repository.CredentialRepository,
	devices repository.DeviceRepository,
	cipher *secrets.Cipher,
) *InventoryHandler {
	return &InventoryHandler{
		sites:       sites,
		credentials: credentials,
		devices:     devices,
		cipher:      cipher,
		validate:    validator.New(),
	}
}

// Routes returns a chi router with inventory routes.
func (h *InventoryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/sites", func(r chi.Router) {
		r.Get("/", h.ListSites)
		r.Post("/", h.CreateSite)
		r.Get("/{id}", h.GetSite)
		r.Put("/{id}", h.UpdateSite)
		r.Delete("/{id}", h.DeleteSite)
	})

	r.Route("/credentials", func(r chi.Router) {
		r.Get("/", h.ListCredentials)
		r.Post("/", h.CreateCredential)
		r.Put("/{id}", h.UpdateCredential)
		r.Delete("/{id}", h.DeleteCredential)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", h.ListDevices)
		r.Post("/", h.CreateDevice)
		r.Get("/{id}", h.GetDevice)
		r.Put("/{id}", h.UpdateDevice)
		r.Delete("/{id}", h.DeleteDevice)
	})

	return r
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// SiteRequest is the HTTP request body for creating or updating a site.
type SiteRequest struct {
	Code          string `json:"code" validate:"required,min=1,max=32"`
	Name          string `json:"name" validate:"required"`
	GiteaRepoName string `json:"gitea_repo_name" validate:"required"`
}

// CreateSite handles POST /api/sites
func (h *InventoryHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	site := &models.Site{Code: req.Code, Name: req.Name, GiteaRepoName: req.GiteaRepoName}
	if err := h.sites.Create(r.Context(), site); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, site)
}

// ListSites handles GET /api/sites
func (h *InventoryHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.List(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sites)
}

// GetSite handles GET /api/sites/{id}
func (h *InventoryHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid site ID")
		return
	}

	site, err := h.sites.GetByID(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	if site == nil {
		response.NotFound(w, "Site")
		return
	}
	response.OK(w, site)
}

// UpdateSite handles PUT /api/sites/{id}
func (h *InventoryHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid site ID")
		return
	}

	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	site := &models.Site{ID: id, Code: req.Code, Name: req.Name, GiteaRepoName: req.GiteaRepoName}
	if err := h.sites.Update(r.Context(), site); err != nil {
		response.NotFound(w, "Site")
		return
	}
	response.OK(w, site)
}

// DeleteSite handles DELETE /api/sites/{id}
func (h *InventoryHandler) DeleteSite(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid site ID")
		return
	}
	if err := h.sites.Delete(r.Context(), id); err != nil {
		response.NotFound(w, "Site")
		return
	}
	response.NoContent(w)
}

// CredentialRequest is the HTTP request body for creating or updating a
// credential set. The password is accepted in plaintext and stored encrypted;
// it is never returned by any endpoint.
type CredentialRequest struct {
	Label    string `json:"label" validate:"required"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateCredential handles POST /api/credentials
func (h *InventoryHandler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	encrypted, err := h.cipher.Encrypt(req.Password)
	if err != nil {
		response.InternalError(w)
		return
	}

	cred := &models.CredentialSet{Label: req.Label, Username: req.Username, EncryptedPassword: encrypted}
	if err := h.credentials.Create(r.Context(), cred); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, cred)
}

// ListCredentials handles GET /api/credentials
func (h *InventoryHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.List(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, creds)
}

// UpdateCredential handles PUT /api/credentials/{id}
func (h *InventoryHandler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid credential ID")
		return
	}

	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	encrypted, err := h.cipher.Encrypt(req.Password)
	if err != nil {
		response.InternalError(w)
		return
	}

	cred := &models.CredentialSet{ID: id, Label: req.Label, Username: req.Username, EncryptedPassword: encrypted}
	if err := h.credentials.Update(r.Context(), cred); err != nil {
		response.NotFound(w, "Credential set")
		return
	}
	response.OK(w, cred)
}

// DeleteCredential handles DELETE /api/credentials/{id}
func (h *InventoryHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid credential ID")
		return
	}
	if err := h.credentials.Delete(r.Context(), id); err != nil {
		response.NotFound(w, "Credential set")
		return
	}
	response.NoContent(w)
}

// DeviceRequest is the HTTP request body for creating or updating a device.
type DeviceRequest struct {
	Hostname     string `json:"hostname" validate:"required"`
	IP           string `json:"ip" validate:"required,ip"`
	Platform     string `json:"platform" validate:"required"`
	SiteID       int64  `json:"site_id" validate:"required"`
	CredentialID *int64 `json:"credential_id,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}

func (req *DeviceRequest) toModel(id int64) (*models.Device, *apierrors.APIError) {
	platform := models.Platform(req.Platform)
	if !platform.Valid() {
		return nil, apierrors.NewValidationError("platform", "unknown platform "+req.Platform)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &models.Device{
		ID:           id,
		Hostname:     req.Hostname,
		IP:           req.IP,
		Platform:     platform,
		SiteID:       req.SiteID,
		CredentialID: req.CredentialID,
		Enabled:      enabled,
	}, nil
}

// CreateDevice handles POST /api/devices
func (h *InventoryHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	device, apiErr := req.toModel(0)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if err := h.devices.Create(r.Context(), device); err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, device)
}

// ListDevices handles GET /api/devices with an optional ?site_id filter.
func (h *InventoryHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	var siteID *int64
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(w, "Invalid site_id filter")
			return
		}
		siteID = &id
	}

	devices, err := h.devices.List(r.Context(), siteID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, devices)
}

// GetDevice handles GET /api/devices/{id}
func (h *InventoryHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
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
	response.OK(w, device)
}

// UpdateDevice handles PUT /api/devices/{id}
func (h *InventoryHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid device ID")
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierrors.ErrBadRequest.WithMessage("Invalid request body"))
		return
	}
	if errs := h.validationErrors(req); errs != nil {
		response.ValidationErrors(w, errs)
		return
	}

	device, apiErr := req.toModel(id)
	if apiErr != nil {
		response.Error(w, apiErr)
		return
	}
	if err := h.devices.Update(r.Context(), device); err != nil {
		response.NotFound(w, "Device")
		return
	}
	response.OK(w, device)
}

// DeleteDevice handles DELETE /api/devices/{id}
func (h *InventoryHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		response.BadRequest(w, "Invalid device ID")
		return
	}
	if err := h.devices.Delete(r.Context(), id); err != nil {
		response.NotFound(w, "Device")
		return
	}
	response.NoContent(w)
}

// validationErrors runs struct validation and flattens the result to a
// field → message map.
func (h *InventoryHandler) validationErrors(req any) map[string]string {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			errs[ve.Field()] = "failed on " + ve.Tag()
		}
		return errs
	}
	errs["request"] = err.Error()
	return errs
}
