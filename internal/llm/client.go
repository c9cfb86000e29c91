// Package llm is the text-generation adapter used by the requirement
// interpreter.
//
// One call, one provider, no retry. Supported kinds are OpenAI-compatible
// chat endpoints (openrouter, openai, azure-openai, ollama) and the
// Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

const (
	KindOpenRouter  = "openrouter"
	KindOpenAI      = "openai"
	KindAzureOpenAI = "azure-openai"
	KindAnthropic   = "anthropic"
	KindOllama      = "ollama"
)

// Generator produces text for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*models.Completion, error)
}

// Client calls one configured provider.
type Client struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a client for cfg. A zero timeout means 60 seconds.
func NewClient(cfg config.LLMConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if cfg.Kind == "" {
		cfg.Kind = KindOpenRouter
	}
	return &Client{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// Generate sends prompt as a single user message.
func (c *Client) Generate(ctx context.Context, prompt string) (*models.Completion, error) {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.kind", c.cfg.Kind),
		attribute.String("llm.model", c.cfg.Model),
	)

	messages := []models.ChatMessage{{Role: "user", Content: prompt}}
	start := time.Now()

	var (
		resp *models.Completion
		err  error
	)
	switch c.cfg.Kind {
	case KindAnthropic:
		resp, err = c.callAnthropic(ctx, messages)
	case KindOllama:
		resp, err = c.callOllama(ctx, messages)
	case KindOpenRouter, KindOpenAI, KindAzureOpenAI:
		resp, err = c.callOpenAI(ctx, messages)
	default:
		return nil, fmt.Errorf("unsupported llm kind: %s", c.cfg.Kind)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp.LatencyMs = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
	)
	log.Debug().
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Int64("latency_ms", resp.LatencyMs).
		Int64("tokens", resp.Usage.TotalTokens).
		Msg("LLM completion received")
	return resp, nil
}

// ── OpenAI-compatible ────────────────────────────────────────

type openAIRequest struct {
	Model    string               `json:"model,omitempty"`
	Messages []models.ChatMessage `json:"messages"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) callOpenAI(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error) {
	kind := c.cfg.Kind
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/")
	if endpoint == "" {
		switch kind {
		case KindOpenRouter:
			endpoint = "https://openrouter.ai/api/v1"
		default:
			endpoint = "https://api.openai.com/v1"
		}
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key not configured", kind)
	}

	url := endpoint + "/chat/completions"
	req := openAIRequest{Model: c.cfg.Model, Messages: messages}
	if kind == KindAzureOpenAI {
		// Azure routes by deployment, not by model field.
		url = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s", endpoint, c.cfg.Model, c.cfg.APIVersion)
		req.Model = ""
	}
	body, _ := json.Marshal(req)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", kind, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if kind == KindAzureOpenAI {
		httpReq.Header.Set("api-key", c.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if kind == KindOpenRouter {
		if c.cfg.SiteURL != "" {
			httpReq.Header.Set("HTTP-Referer", c.cfg.SiteURL)
		}
		if c.cfg.SiteName != "" {
			httpReq.Header.Set("X-Title", c.cfg.SiteName)
		}
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", kind, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("%s: status %d: %s", kind, httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", kind, err)
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &models.Completion{
		ID:       oaiResp.ID,
		Provider: kind,
		Model:    c.cfg.Model,
		Content:  content,
		Usage: models.TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// ── Anthropic ────────────────────────────────────────────────

type anthropicRequest struct {
	Model     string               `json:"model"`
	Messages  []models.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Client) callAnthropic(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error) {
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key not configured")
	}

	body, _ := json.Marshal(anthropicRequest{Model: c.cfg.Model, Messages: messages, MaxTokens: 4096})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("anthropic: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	content := ""
	for _, block := range anthResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &models.Completion{
		ID:       anthResp.ID,
		Provider: KindAnthropic,
		Model:    c.cfg.Model,
		Content:  content,
		Usage: models.TokenUsage{
			InputTokens:  anthResp.Usage.InputTokens,
			OutputTokens: anthResp.Usage.OutputTokens,
			TotalTokens:  anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
	}, nil
}

// ── Ollama ───────────────────────────────────────────────────

func (c *Client) callOllama(ctx context.Context, messages []models.ChatMessage) (*models.Completion, error) {
	endpoint := strings.TrimRight(c.cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}

	body, _ := json.Marshal(openAIRequest{Model: c.cfg.Model, Messages: messages})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &models.Completion{
		ID:       uuid.New().String(),
		Provider: KindOllama,
		Model:    c.cfg.Model,
		Content:  content,
		Usage: models.TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// Static returns a fixed response. It is used by the CLI's --offline mode and
// by tests.
type Static struct {
	Content string
	Err     error
}

func (s Static) Generate(_ context.Context, _ string) (*models.Completion, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &models.Completion{ID: uuid.New().String(), Provider: "static", Content: s.Content}, nil
}
