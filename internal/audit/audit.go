// Package audit classifies operation failures and records them to one or
// more sinks.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Failure types assigned by Classify.
const (
	TypeJSONFormat           = "json_format_error"
	TypeMissingLinkedService = "missing_linked_service"
	TypeMissingDataset       = "missing_dataset"
	TypeValidation           = "validation_error"
	TypeInvalidReference     = "invalid_reference"
	TypeUnknown              = "unknown"
)

// Classify maps an error message onto a failure type. Rules are checked in
// order and the first match wins.
func Classify(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "json") && (strings.Contains(m, "decode") || strings.Contains(m, "parse")):
		return TypeJSONFormat
	case strings.Contains(m, "linked service"), strings.Contains(m, "linkedservice"):
		return TypeMissingLinkedService
	case strings.Contains(m, "dataset"):
		return TypeMissingDataset
	case strings.Contains(m, "validation"):
		return TypeValidation
	case strings.Contains(m, "reference"):
		return TypeInvalidReference
	default:
		return TypeUnknown
	}
}

// Sink persists audit events.
type Sink interface {
	Kind() string
	Write(ctx context.Context, ev models.AuditEvent) error
	Close() error
}

// Log fans classified events out to its sinks. A nil *Log discards events.
type Log struct {
	sinks []Sink
	now   func() time.Time
}

// New creates a log writing to sinks.
func New(sinks ...Sink) *Log {
	return &Log{sinks: sinks, now: func() time.Time { return time.Now().UTC() }}
}

// Record classifies err and writes it to every sink. Sink failures are
// logged and otherwise ignored so that auditing never masks the original
// failure.
func (l *Log) Record(ctx context.Context, stage string, err error, data map[string]interface{}) models.AuditEvent {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	ev := models.AuditEvent{
		ID:     uuid.NewString(),
		Stage:  stage,
		Type:   Classify(reason),
		Reason: reason,
		Data:   data,
	}
	if l == nil {
		ev.Timestamp = time.Now().UTC()
		return ev
	}
	ev.Timestamp = l.now()

	for _, s := range l.sinks {
		if werr := s.Write(ctx, ev); werr != nil {
			log.Warn().Err(werr).Str("sink", s.Kind()).Str("event", ev.ID).Msg("Audit sink write failed")
		}
	}
	log.Debug().Str("stage", stage).Str("type", ev.Type).Msg("Audit event recorded")
	return ev
}

// Close closes every sink and returns the joined errors.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reader is implemented by sinks that can list what they stored.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]models.AuditEvent, error)
}

// Recent reads from the first sink that supports reading.
func (l *Log) Recent(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if l == nil {
		return nil, nil
	}
	for _, s := range l.sinks {
		if r, ok := s.(Reader); ok {
			return r.Recent(ctx, limit)
		}
	}
	return nil, nil
}

// Purger is implemented by sinks that can drop old events.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Purge drops events older than before from every sink that supports it and
// returns the count per sink kind.
func (l *Log) Purge(ctx context.Context, before time.Time) (map[string]int, error) {
	out := map[string]int{}
	if l == nil {
		return out, nil
	}
	var errs []error
	for _, s := range l.sinks {
		p, ok := s.(Purger)
		if !ok {
			continue
		}
		n, err := p.Purge(ctx, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Kind(), err))
			continue
		}
		out[s.Kind()] += n
	}
	return out, errors.Join(errs...)
}
