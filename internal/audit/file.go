package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

// FileName is the JSONL file the file sink appends to.
const FileName = "error_log.jsonl"

// FileSink appends one JSON object per line to {dir}/error_log.jsonl.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates the log directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileSink{path: filepath.Join(dir, FileName)}, nil
}

func (s *FileSink) Kind() string { return "file" }

// Path returns the file being written.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(_ context.Context, ev models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(ev); err != nil {
		return fmt.Errorf("encode audit event %s: %w", ev.ID, err)
	}
	return nil
}

// Recent reads back up to limit events, newest first. Lines that do not
// decode are skipped.
func (s *FileSink) Recent(_ context.Context, limit int) ([]models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var out []models.AuditEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var ev models.AuditEvent
		if json.Unmarshal(sc.Bytes(), &ev) == nil {
			out = append(out, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Purge rewrites the log without events older than before. Lines that do
// not decode are kept.
func (s *FileSink) Purge(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}

	var kept bytes.Buffer
	purged := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev models.AuditEvent
		if json.Unmarshal(line, &ev) == nil && ev.Timestamp.Before(before) {
			purged++
			continue
		}
		kept.Write(line)
		kept.WriteByte('\n')
	}
	if purged == 0 {
		return 0, nil
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, kept.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("write audit log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, fmt.Errorf("replace audit log: %w", err)
	}
	return purged, nil
}

func (s *FileSink) Close() error { return nil }
