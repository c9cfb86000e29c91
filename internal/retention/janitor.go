// Package retention periodically purges expired audit events.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. A failed purge is logged and retried
// on the next cycle.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/internal/config"
)

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Cutoff time.Time
	Purged map[string]int
	Err    error
}

// Janitor purges audit events older than the retention window.
type Janitor struct {
	log      *audit.Log
	window   time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewJanitor returns nil when retention is disabled.
func NewJanitor(l *audit.Log, cfg config.RetentionConfig) *Janitor {
	if cfg.AuditDays <= 0 {
		return nil
	}
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval < time.Hour {
		interval = time.Hour // minimum 1 hour
	}
	return &Janitor{
		log:      l,
		window:   time.Duration(cfg.AuditDays) * 24 * time.Hour,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start blocks until ctx is canceled, running one cycle immediately and
// then one per interval.
func (j *Janitor) Start(ctx context.Context) {
	if j == nil {
		return
	}
	log.Info().
		Dur("interval", j.interval).
		Dur("window", j.window).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle purges once.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	stats := CycleStats{Cutoff: j.now().Add(-j.window)}
	stats.Purged, stats.Err = j.log.Purge(ctx, stats.Cutoff)

	evt := log.Info()
	if stats.Err != nil {
		evt = log.Warn().Err(stats.Err)
	}
	for kind, n := range stats.Purged {
		evt = evt.Int(kind, n)
	}
	evt.Time("cutoff", stats.Cutoff).Msg("Retention cycle complete")
	return stats
}
