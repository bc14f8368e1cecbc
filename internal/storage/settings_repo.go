package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskscope/scheduler/internal/model"
)

// SettingsRepository is the sqlx-backed store behind the database settings
// provider (internal/settingsprovider) and the admin API's settings
// endpoints: one row per (tenant, task_name).
type SettingsRepository struct {
	db *Database
}

func NewSettingsRepository(db *Database) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Find(ctx context.Context, tenant, taskName string) (*model.TaskSettingRow, error) {
	var row model.TaskSettingRow
	query := `
		SELECT id, tenant, task_name, schedule, enable, title, description, created_at, updated_at
		FROM task_settings WHERE tenant = $1 AND task_name = $2
	`
	err := r.db.GetContext(ctx, &row, query, tenant, taskName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find task settings: %w", err)
	}
	return &row, nil
}

func (r *SettingsRepository) FindByTenant(ctx context.Context, tenant string) ([]model.TaskSettingRow, error) {
	var rows []model.TaskSettingRow
	query := `
		SELECT id, tenant, task_name, schedule, enable, title, description, created_at, updated_at
		FROM task_settings WHERE tenant = $1 ORDER BY task_name
	`
	if err := r.db.SelectContext(ctx, &rows, query, tenant); err != nil {
		return nil, fmt.Errorf("failed to find tenant task settings: %w", err)
	}
	return rows, nil
}

// Upsert creates or replaces the settings row for (tenant, taskName).
func (r *SettingsRepository) Upsert(ctx context.Context, tenant, taskName string, req *model.UpsertSettingsRequest) (*model.TaskSettingRow, error) {
	var row model.TaskSettingRow
	query := `
		INSERT INTO task_settings (tenant, task_name, schedule, enable, title, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant, task_name) DO UPDATE SET
			schedule = EXCLUDED.schedule,
			enable = EXCLUDED.enable,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, tenant, task_name, schedule, enable, title, description, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, tenant, taskName, req.Schedule, req.Enable, req.Title, req.Description).
		StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert task settings: %w", err)
	}
	return &row, nil
}

func (r *SettingsRepository) Delete(ctx context.Context, tenant, taskName string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM task_settings WHERE tenant = $1 AND task_name = $2`, tenant, taskName)
	if err != nil {
		return fmt.Errorf("failed to delete task settings: %w", err)
	}
	return nil
}
