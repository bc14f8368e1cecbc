package settingsprovider

import (
	"context"

	"github.com/taskscope/scheduler/internal/cronspec"
	"github.com/taskscope/scheduler/internal/tenanthost"
)

// StaticOrder is the priority the bundled fallback provider registers at:
// it only answers once every higher-priority provider has passed.
const StaticOrder = 100

// Static always answers with a fixed schedule, disabled by default. It
// never returns ok=false, so it is usually registered last — spec.md §4.5
// step 3.d's documented default is exactly this shape, expressed as a real
// provider instead of being hardcoded into the control loop.
type Static struct {
	schedule string
	enable   bool
	order    int
}

// NewStatic builds a static provider; schedule defaults to
// cronspec.DefaultSchedule if empty.
func NewStatic(schedule string, enable bool) *Static {
	if schedule == "" {
		schedule = cronspec.DefaultSchedule
	}
	return &Static{schedule: schedule, enable: enable, order: StaticOrder}
}

func (p *Static) Order() int { return p.order }

func (p *Static) GetSettings(ctx context.Context, taskName string) (tenanthost.Settings, bool, error) {
	return tenanthost.Settings{
		Name:     taskName,
		Schedule: p.schedule,
		Enable:   p.enable,
	}, true, nil
}
