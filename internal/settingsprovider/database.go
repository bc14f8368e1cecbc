// Package settingsprovider implements the tenanthost.SettingsProvider
// contract: a database-backed provider consulted first, and a static
// fallback consulted last, mirroring spec.md §6's ascending-Order,
// first-non-None resolution.
package settingsprovider

import (
	"context"
	"fmt"

	"github.com/taskscope/scheduler/internal/storage"
	"github.com/taskscope/scheduler/internal/tenanthost"
)

// DatabaseOrder is the priority a database-backed provider is conventionally
// registered at: operator edits always win over bundled defaults.
const DatabaseOrder = 0

// Database resolves settings from the task_settings table. A missing row
// is reported as ok=false so the control loop falls through to the next
// provider, never as an error.
type Database struct {
	repo   *storage.SettingsRepository
	tenant string
	order  int
}

// NewDatabase builds a provider scoped to one tenant, at DatabaseOrder.
func NewDatabase(repo *storage.SettingsRepository, tenant string) *Database {
	return &Database{repo: repo, tenant: tenant, order: DatabaseOrder}
}

func (p *Database) Order() int { return p.order }

func (p *Database) GetSettings(ctx context.Context, taskName string) (tenanthost.Settings, bool, error) {
	row, err := p.repo.Find(ctx, p.tenant, taskName)
	if err != nil {
		return tenanthost.Settings{}, false, fmt.Errorf("database settings provider: %w", err)
	}
	if row == nil {
		return tenanthost.Settings{}, false, nil
	}
	return tenanthost.Settings{
		Name:        row.TaskName,
		Schedule:    row.Schedule,
		Enable:      row.Enable,
		Title:       row.Title,
		Description: row.Description,
	}, true, nil
}
