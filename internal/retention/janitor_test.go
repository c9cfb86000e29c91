package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

func TestNewJanitor_Disabled(t *testing.T) {
	assert.Nil(t, NewJanitor(audit.New(), config.RetentionConfig{AuditDays: 0}))
}

func TestNewJanitor_MinimumInterval(t *testing.T) {
	j := NewJanitor(audit.New(), config.RetentionConfig{AuditDays: 7})
	assert.Equal(t, time.Hour, j.interval)
	assert.Equal(t, 7*24*time.Hour, j.window)
}

func TestRunCycle_PurgesExpiredFileEvents(t *testing.T) {
	sink, err := audit.NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Write(ctx, models.AuditEvent{ID: "old", Type: audit.TypeUnknown, Timestamp: now.Add(-40 * 24 * time.Hour)}))
	require.NoError(t, sink.Write(ctx, models.AuditEvent{ID: "new", Type: audit.TypeUnknown, Timestamp: now.Add(-time.Hour)}))

	j := NewJanitor(audit.New(sink), config.RetentionConfig{AuditDays: 30, IntervalHours: 24})
	j.now = func() time.Time { return now }

	stats := j.RunCycle(ctx)
	require.NoError(t, stats.Err)
	assert.Equal(t, 1, stats.Purged["file"])

	events, err := sink.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)

	// Nothing left to purge.
	assert.Equal(t, 0, j.RunCycle(ctx).Purged["file"])
}

func TestStart_StopsOnCancel(t *testing.T) {
	sink, err := audit.NewFileSink(t.TempDir())
	require.NoError(t, err)
	j := NewJanitor(audit.New(sink), config.RetentionConfig{AuditDays: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
