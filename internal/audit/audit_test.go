package audit_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"LLM JSON parse failed: unexpected end", audit.TypeJSONFormat},
		{"json: cannot decode number", audit.TypeJSONFormat},
		{"The linked service 'Snowflake_LS' was not found", audit.TypeMissingLinkedService},
		{"LinkedService reference missing", audit.TypeMissingLinkedService},
		{"Dataset SinkDataset does not exist", audit.TypeMissingDataset},
		{"config schema validation failed", audit.TypeValidation},
		{"invalid reference to pipeline", audit.TypeInvalidReference},
		// First rule wins.
		{"json parse failed for dataset", audit.TypeJSONFormat},
		{"json is fine", audit.TypeUnknown},
		{"", audit.TypeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, audit.Classify(tt.msg), tt.msg)
	}
}

type memSink struct {
	events []models.AuditEvent
	err    error
	closed bool
}

func (m *memSink) Kind() string { return "mem" }

func (m *memSink) Write(_ context.Context, ev models.AuditEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestLog_RecordFansOut(t *testing.T) {
	bad := &memSink{err: errors.New("disk full")}
	good := &memSink{}
	l := audit.New(bad, good)

	ev := l.Record(context.Background(), "deploy", errors.New("Dataset X not found"), map[string]interface{}{"pipeline": "P"})
	assert.Equal(t, audit.TypeMissingDataset, ev.Type)
	assert.Equal(t, "deploy", ev.Stage)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())

	require.Len(t, good.events, 1)
	assert.Equal(t, ev.ID, good.events[0].ID)

	require.NoError(t, l.Close())
	assert.True(t, good.closed)
}

func TestLog_NilDiscards(t *testing.T) {
	var l *audit.Log
	ev := l.Record(context.Background(), "interpret", errors.New("boom"), nil)
	assert.Equal(t, audit.TypeUnknown, ev.Type)
	assert.NoError(t, l.Close())
}

func TestFileSink_AppendsJSONL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	fs, err := audit.NewFileSink(dir)
	require.NoError(t, err)
	l := audit.New(fs)

	l.Record(context.Background(), "interpret", errors.New("LLM JSON parse failed"), nil)
	l.Record(context.Background(), "validate", errors.New("validation: no activities"), nil)

	raw, err := os.ReadFile(filepath.Join(dir, audit.FileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"json_format_error"`)

	events, err := l.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.TypeValidation, events[0].Type)
}

func TestFileSink_RecentWithoutFile(t *testing.T) {
	fs, err := audit.NewFileSink(t.TempDir())
	require.NoError(t, err)
	events, err := fs.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPostgresSink_RejectsTableName(t *testing.T) {
	_, err := audit.NewPostgresSink(context.Background(), "postgres://localhost/db", "events; DROP TABLE x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid audit table name")
}

func TestFileSinkPurge(t *testing.T) {
	sink, err := audit.NewFileSink(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Write(ctx, models.AuditEvent{ID: "a", Timestamp: cutoff.Add(-time.Minute)}))
	require.NoError(t, sink.Write(ctx, models.AuditEvent{ID: "b", Timestamp: cutoff.Add(time.Minute)}))

	purged, err := audit.New(sink).Purge(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"file": 1}, purged)

	events, err := sink.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].ID)
}
