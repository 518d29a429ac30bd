package work

import (
	"context"
	"time"

	"github.com/hpcugent/hod/internal/metrics"
)

// DefaultPollInterval is the supervisor's sleep between poll cycles when
// no active work retired in the current cycle.
const DefaultPollInterval = 60 * time.Second

// Supervisor implements the Supervisor Loop (C7): it repeatedly polls a
// set of ActiveWork entries and drives any whose stop conditions have
// fired through STOPPING->RETIRED, until none remain.
type Supervisor struct {
	pollInterval time.Duration
}

// NewSupervisor builds a Supervisor with the given poll interval; a
// non-positive interval falls back to DefaultPollInterval.
func NewSupervisor(pollInterval time.Duration) *Supervisor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Supervisor{pollInterval: pollInterval}
}

// Run blocks until active is empty or ctx is canceled. Stop errors are
// logged, not propagated: one distribution's failure to retire cleanly
// must not prevent the loop from continuing to drain the rest.
func (s *Supervisor) Run(ctx context.Context, active []*ActiveWork) error {
	for len(active) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := time.Now()
		remaining := active[:0]
		retiredAny := false

		for _, w := range active {
			stop, reason := w.ShouldStop(now)
			if !stop {
				remaining = append(remaining, w)
				continue
			}

			log.Info().Str("distribution", string(w.Distribution().Kind)).Str("reason", reason).Msg("retiring distribution")
			if err := w.Stop(ctx); err != nil {
				log.Error().Err(err).Str("distribution", string(w.Distribution().Kind)).Msg("failed to retire distribution cleanly")
			} else {
				metrics.DistributionsRetiredTotal.WithLabelValues(string(w.Distribution().Kind)).Inc()
			}
			retiredAny = true
		}
		active = remaining

		if len(active) == 0 {
			break
		}
		if !retiredAny {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.pollInterval):
			}
		}
	}
	return nil
}
