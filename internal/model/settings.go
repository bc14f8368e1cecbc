package model

import "time"

// TaskSettingRow is the persisted row backing the database settings
// provider: one (tenant, task) schedule/enablement override, editable
// through the admin API.
type TaskSettingRow struct {
	ID          string    `json:"id" db:"id"`
	Tenant      string    `json:"tenant" db:"tenant"`
	TaskName    string    `json:"task_name" db:"task_name"`
	Schedule    string    `json:"schedule" db:"schedule"`
	Enable      bool      `json:"enable" db:"enable"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UpsertSettingsRequest is the admin API body for PUT
// /tenants/{tenant}/tasks/{task}/settings.
type UpsertSettingsRequest struct {
	Schedule    string `json:"schedule" validate:"required"`
	Enable      bool   `json:"enable"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CommandRequest is the admin API body for POST
// /tenants/{tenant}/tasks/{task}/command.
type CommandRequest struct {
	Command string `json:"command" validate:"required"`
}

// StateResponse mirrors scheduling.State for JSON transport, with the
// error flattened to a string.
type StateResponse struct {
	Status        string     `json:"status"`
	StartedUtc    *time.Time `json:"started_utc,omitempty"`
	StoppedUtc    *time.Time `json:"stopped_utc,omitempty"`
	LastException string     `json:"last_exception,omitempty"`
	NextStartUtc  *time.Time `json:"next_start_utc,omitempty"`
}

// HistoryEntryResponse is one past run outcome, for JSON transport.
type HistoryEntryResponse struct {
	StartedUtc time.Time `json:"started_utc"`
	StoppedUtc time.Time `json:"stopped_utc"`
	Error      string    `json:"error,omitempty"`
}
