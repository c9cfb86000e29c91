// Package notify posts operation outcomes to a webhook.
//
// Payloads are JSON. When a secret is configured every request carries an
// X-AutoFlow-Signature header holding "sha256=" plus the hex HMAC-SHA256 of
// the body.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// ── Event types ─────────────────────────────────────────────

const (
	EventDeployed  = "pipeline_deployed"
	EventValidated = "pipeline_validated"
	EventBlocked   = "pipeline_blocked"
)

// Event is the webhook payload.
type Event struct {
	Type      string    `json:"type"`
	Operation string    `json:"operation"`
	Pipeline  string    `json:"pipeline,omitempty"`
	Factory   string    `json:"factory,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	SavedTo   string    `json:"saved_to,omitempty"`
	Trigger   string    `json:"trigger,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromResult maps a generate result to its event.
func FromResult(res *models.GenerateResult, rctx *models.ResolvedContext) Event {
	ev := Event{
		Operation: res.ID,
		Stage:     res.Stage,
		SavedTo:   res.SavedTo,
		Message:   res.Message,
		Timestamp: time.Now().UTC(),
	}
	switch res.Status {
	case models.StatusDeployed:
		ev.Type = EventDeployed
	case models.StatusValidated:
		ev.Type = EventValidated
	default:
		ev.Type = EventBlocked
	}
	if res.Pipeline != nil {
		ev.Pipeline = res.Pipeline.Name
	}
	if rctx != nil {
		ev.Factory = rctx.FactoryName
	}
	if res.DeployResult != nil && res.DeployResult.Trigger != nil {
		ev.Trigger = res.DeployResult.Trigger.Status
	}
	return ev
}

// ── Webhook ──────────────────────────────────────────────────

// Webhook sends events with up to three attempts. A nil *Webhook is a no-op.
type Webhook struct {
	url     string
	secret  string
	client  *http.Client
	backoff time.Duration
}

// NewWebhook returns nil when no URL is configured.
func NewWebhook(cfg config.NotifyConfig) *Webhook {
	if cfg.WebhookURL == "" {
		return nil
	}
	return &Webhook{
		url:     cfg.WebhookURL,
		secret:  cfg.WebhookSecret,
		client:  &http.Client{Timeout: 15 * time.Second},
		backoff: 2 * time.Second,
	}
}

// WithBackoff sets the base delay between attempts.
func (w *Webhook) WithBackoff(d time.Duration) *Webhook {
	if w != nil {
		w.backoff = d
	}
	return w
}

// Send posts ev to the webhook.
func (w *Webhook) Send(ctx context.Context, ev Event) error {
	if w == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "AutoFlowAI-Webhook/1.0")
		req.Header.Set("X-AutoFlow-Event", ev.Type)
		if w.secret != "" {
			req.Header.Set("X-AutoFlow-Signature", "sha256="+Sign(w.secret, body))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			log.Debug().Str("event", ev.Type).Str("operation", ev.Operation).Msg("Webhook delivered")
			return nil
		}
		lastErr = fmt.Errorf("webhook HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("webhook failed after 3 attempts: %w", lastErr)
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
