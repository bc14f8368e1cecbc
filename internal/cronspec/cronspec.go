// Package cronspec evaluates standard 5-field cron expressions against a
// reference instant. It wraps robfig/cron's parser; expressions are parsed
// fresh on every call rather than cached, since correctness under a moving
// reference time matters more than shaving a parse off the hot path.
package cronspec

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule is used whenever a task has no explicit schedule.
const DefaultSchedule = "* * * * *"

// BadScheduleError wraps a cron parse failure for a given expression.
type BadScheduleError struct {
	Expr string
	Err  error
}

func (e *BadScheduleError) Error() string {
	return fmt.Sprintf("bad schedule %q: %v", e.Expr, e.Err)
}

func (e *BadScheduleError) Unwrap() error { return e.Err }

// NextOccurrence returns the earliest instant strictly after ref matching
// expr, in UTC. expr must be a standard 5-field cron expression. Returns a
// *BadScheduleError if expr does not parse.
func NextOccurrence(expr string, ref time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, &BadScheduleError{Expr: expr, Err: err}
	}
	return sched.Next(ref).UTC(), nil
}

// Validate reports whether expr parses as a standard 5-field cron
// expression, without computing an occurrence.
func Validate(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return &BadScheduleError{Expr: expr, Err: err}
	}
	return nil
}
