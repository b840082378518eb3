// Package presence rotates the bot's status line on a cron schedule.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// UpdateFunc pushes one status line out. The runner wires this to the
// current connection's UpdateStatus; between reconnect attempts it may
// return an error, which the rotator logs and moves past.
type UpdateFunc func(ctx context.Context, status string) error

// Rotator cycles through configured status lines whenever the cron
// schedule fires.
type Rotator struct {
	schedule cron.Schedule
	statuses []string
	next     int
	update   UpdateFunc
	logger   *slog.Logger
}

// New parses the cron spec and creates a rotator. Standard five-field
// specs and descriptors like "@every 5m" are accepted.
func New(spec string, statuses []string, update UpdateFunc, logger *slog.Logger) (*Rotator, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing presence schedule %q: %w", spec, err)
	}
	if len(statuses) == 0 {
		return nil, fmt.Errorf("presence statuses must not be empty")
	}
	return &Rotator{
		schedule: schedule,
		statuses: statuses,
		update:   update,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is canceled, pushing the next status line each
// time the schedule fires.
func (r *Rotator) Run(ctx context.Context) {
	for {
		fireAt := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(fireAt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.rotate(ctx)
		}
	}
}

// rotate pushes the next status in the cycle. Failures are logged and
// skipped so a dropped connection never stalls the rotation.
func (r *Rotator) rotate(ctx context.Context) {
	status := r.statuses[r.next]
	r.next = (r.next + 1) % len(r.statuses)

	if err := r.update(ctx, status); err != nil {
		r.logger.Warn("presence update failed",
			slog.String("status", status),
			slog.String("error", err.Error()))
		return
	}
	r.logger.Debug("presence updated", slog.String("status", status))
}
