package schedule

import (
	"github.com/robfig/cron/v3"

	logx "shiftwatch/pkg/logx"
)

// DefaultRefreshCron re-runs a rebuild nightly at 03:30 local time, so
// the plan horizon keeps rolling forward even when nothing else changes.
const DefaultRefreshCron = "30 3 * * *"

// Refresher triggers periodic rebuilds on a cron schedule.
type Refresher struct {
	c   *cron.Cron
	log logx.Logger
}

// NewRefresher validates spec and binds it to the coordinator. Spec uses
// the standard five-field cron syntax, evaluated in the coordinator's
// timezone.
func NewRefresher(spec string, coord *Coordinator, log logx.Logger) (*Refresher, error) {
	if spec == "" {
		spec = DefaultRefreshCron
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := cron.New(cron.WithLocation(coord.loc))
	if _, err := c.AddFunc(spec, func() {
		log.Debug("scheduled refresh")
		coord.RebuildDebounced()
	}); err != nil {
		return nil, err
	}
	return &Refresher{c: c, log: log}, nil
}

func (r *Refresher) Start() { r.c.Start() }

// Stop halts the schedule; a rebuild already handed to the coordinator
// still completes.
func (r *Refresher) Stop() { r.c.Stop() }
