// Package api implements the admin HTTP surface over the control
// package's public query/command API (spec.md C6): authentication,
// per-tenant settings and state inspection, and the command endpoint.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/taskscope/scheduler/internal/control"
	"github.com/taskscope/scheduler/internal/cronspec"
	"github.com/taskscope/scheduler/internal/middleware"
	"github.com/taskscope/scheduler/internal/model"
	"github.com/taskscope/scheduler/internal/scheduling"
	"github.com/taskscope/scheduler/internal/storage"
)

// Handler holds every dependency the admin HTTP surface needs.
type Handler struct {
	userRepo     *storage.UserRepository
	settingsRepo *storage.SettingsRepository
	sched        *control.Scheduler
	auth         *middleware.AuthMiddleware
}

func NewHandler(userRepo *storage.UserRepository, settingsRepo *storage.SettingsRepository, sched *control.Scheduler, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{userRepo: userRepo, settingsRepo: settingsRepo, sched: sched, auth: auth}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Register godoc
// @Summary Register a new operator account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body model.RegisterRequest true "Registration details"
// @Success 201 {object} model.LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "email, password, and name are required")
		return
	}
	if !isValidEmail(req.Email) {
		respondError(w, http.StatusBadRequest, "invalid email format")
		return
	}
	if len(req.Password) < 8 {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	existing, _ := h.userRepo.FindByEmail(r.Context(), req.Email)
	if existing != nil {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}

	user, err := h.userRepo.Create(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, expiresAt, err := h.auth.GenerateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, model.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// Login godoc
// @Summary Authenticate an operator
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body model.LoginRequest true "Credentials"
// @Success 200 {object} model.LoginResponse
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.userRepo.FindByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !h.userRepo.ValidatePassword(user, req.Password) {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.auth.GenerateToken(user)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	h.userRepo.UpdateLastLogin(r.Context(), user.ID)

	respondJSON(w, http.StatusOK, model.LoginResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// Health godoc
// @Summary Liveness check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"scheduler": h.sched.IsRunning(),
	})
}

// GetSettings godoc
// @Summary Get a task's settings
// @Tags Settings
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param task path string true "Task name"
// @Success 200 {object} scheduling.Settings
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks/{task}/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenant, task := r.PathValue("tenant"), r.PathValue("task")
	respondJSON(w, http.StatusOK, h.sched.GetSettings(tenant, task))
}

// PutSettings godoc
// @Summary Upsert a task's settings
// @Tags Settings
// @Accept json
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param task path string true "Task name"
// @Param request body model.UpsertSettingsRequest true "Settings"
// @Success 200 {object} model.TaskSettingRow
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks/{task}/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	tenant, task := r.PathValue("tenant"), r.PathValue("task")

	var req model.UpsertSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Schedule == "" {
		respondError(w, http.StatusBadRequest, "schedule is required")
		return
	}
	if err := cronspec.Validate(req.Schedule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
		return
	}
	if h.settingsRepo == nil {
		respondError(w, http.StatusServiceUnavailable, "settings storage unavailable")
		return
	}

	row, err := h.settingsRepo.Upsert(r.Context(), tenant, task, &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	h.sched.UpdateAsync()
	respondJSON(w, http.StatusOK, row)
}

// GetState godoc
// @Summary Get a task's run-state
// @Tags State
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param task path string true "Task name"
// @Success 200 {object} model.StateResponse
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks/{task}/state [get]
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	tenant, task := r.PathValue("tenant"), r.PathValue("task")
	respondJSON(w, http.StatusOK, stateResponse(h.sched.GetState(tenant, task)))
}

// GetStates godoc
// @Summary Get every task's run-state for a tenant
// @Tags State
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Success 200 {object} map[string]model.StateResponse
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks [get]
func (h *Handler) GetStates(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	states := h.sched.GetStates(tenant)
	out := make(map[string]model.StateResponse, len(states))
	for name, st := range states {
		out[name] = stateResponse(st)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetHistory godoc
// @Summary Get a task's bounded run history
// @Tags State
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param task path string true "Task name"
// @Success 200 {array} model.HistoryEntryResponse
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks/{task}/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tenant, task := r.PathValue("tenant"), r.PathValue("task")
	records := h.sched.GetHistory(tenant, task)
	out := make([]model.HistoryEntryResponse, len(records))
	for i, rec := range records {
		entry := model.HistoryEntryResponse{StartedUtc: rec.StartedUtc, StoppedUtc: rec.StoppedUtc}
		if rec.Err != nil {
			entry.Error = rec.Err.Error()
		}
		out[i] = entry
	}
	respondJSON(w, http.StatusOK, out)
}

// PostCommand godoc
// @Summary Issue an operator command against a task
// @Tags Commands
// @Accept json
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Param task path string true "Task name"
// @Param request body model.CommandRequest true "Command: Enable, Disable, ResetState, Trigger"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /tenants/{tenant}/tasks/{task}/command [post]
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	tenant, task := r.PathValue("tenant"), r.PathValue("task")

	var req model.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code, ok := parseCommand(req.Command)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown command: "+req.Command)
		return
	}

	h.sched.Command(tenant, task, code)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func parseCommand(s string) (scheduling.Command, bool) {
	switch strings.ToLower(s) {
	case "enable":
		return scheduling.CommandEnable, true
	case "disable":
		return scheduling.CommandDisable, true
	case "resetstate", "reset_state", "reset":
		return scheduling.CommandResetState, true
	case "trigger":
		return scheduling.CommandTrigger, true
	default:
		return "", false
	}
}

func stateResponse(st scheduling.State) model.StateResponse {
	resp := model.StateResponse{Status: string(st.Status)}
	if !st.StartedUtc.IsZero() {
		t := st.StartedUtc
		resp.StartedUtc = &t
	}
	if !st.StoppedUtc.IsZero() {
		t := st.StoppedUtc
		resp.StoppedUtc = &t
	}
	if !st.NextStartUtc.IsZero() {
		t := st.NextStartUtc
		resp.NextStartUtc = &t
	}
	if st.LastException != nil {
		resp.LastException = st.LastException.Error()
	}
	return resp
}

// isValidEmail performs a basic email validation.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
