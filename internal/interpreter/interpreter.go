// Package interpreter converts a free-text requirement into a validated
// PipelineConfig with one call to the text-generation backend.
package interpreter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/llm"
	"github.com/christy136/AutoFlowAI/internal/prompt"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

var (
	ErrEmptyResponse   = errors.New("empty response from LLM")
	ErrParse           = errors.New("LLM JSON parse failed")
	ErrSchemaViolation = errors.New("config schema validation failed")
)

//go:embed schema.json
var schemaJSON string

var configSchema = mustSchema(schemaJSON)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("interpreter: invalid embedded schema: %v", err))
	}
	return schema
}

// Interpreter drives prompt, completion, repair and validation.
type Interpreter struct {
	gen      llm.Generator
	prompts  *prompt.Builder
	defaults config.AzureConfig
}

// New creates an interpreter. A nil builder uses the built-in template.
func New(gen llm.Generator, prompts *prompt.Builder, defaults config.AzureConfig) *Interpreter {
	if prompts == nil {
		prompts = prompt.NewBuilder()
	}
	return &Interpreter{gen: gen, prompts: prompts, defaults: defaults}
}

// Interpret returns a schema-valid config with a canonical schedule string
// and linked-service names filled in. Errors wrap ErrEmptyResponse, ErrParse
// or ErrSchemaViolation.
func (in *Interpreter) Interpret(ctx context.Context, requirement string, rctx *models.ResolvedContext) (*models.PipelineConfig, error) {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "interpreter.interpret")
	defer span.End()

	text, err := in.prompts.Build(prompt.NewData(requirement, rctx))
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	span.SetAttributes(attribute.String("prompt.intent", in.prompts.Detect(requirement)))

	resp, err := in.gen.Generate(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("LLM call failed")
		return nil, fmt.Errorf("%w: %v", ErrEmptyResponse, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyResponse
	}

	cfg, err := Parse(resp.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	in.applyDefaults(cfg, rctx)

	log.Info().
		Str("pipeline", cfg.Name).
		Str("source", cfg.Source.Type).
		Str("sink", cfg.Sink.Type).
		Str("schedule", cfg.Schedule).
		Msg("Requirement interpreted")
	return cfg, nil
}

// Parse repairs, decodes, normalizes and schema-validates raw model output.
func Parse(raw string) (*models.PipelineConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyResponse
	}
	fixed, ok := Repair(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrParse)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(fixed), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	NormalizeSchedule(doc)

	result, err := configSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(msgs, "; "))
	}

	// Re-encode the validated document into the typed record.
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	var cfg models.PipelineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &cfg, nil
}

// NormalizeSchedule flattens an object schedule {frequency, time} into the
// canonical string form: "<frequency>@<time>", "<frequency>", or "once" when
// no frequency is given. String schedules are trimmed and left as is.
func NormalizeSchedule(doc map[string]interface{}) {
	switch v := doc["schedule"].(type) {
	case map[string]interface{}:
		freq, _ := v["frequency"].(string)
		freq = strings.TrimSpace(freq)
		if freq == "" {
			freq = "once"
		}
		tm, _ := v["time"].(string)
		tm = strings.TrimSpace(tm)
		if tm != "" {
			doc["schedule"] = freq + "@" + tm
		} else {
			doc["schedule"] = freq
		}
	case string:
		doc["schedule"] = strings.TrimSpace(v)
	}
}

func (in *Interpreter) applyDefaults(cfg *models.PipelineConfig, rctx *models.ResolvedContext) {
	blobLS, sfLS := in.defaults.BlobLinkedService, in.defaults.SnowflakeLinkedService
	if rctx != nil {
		if rctx.BlobLinkedService != "" {
			blobLS = rctx.BlobLinkedService
		}
		if rctx.SnowflakeLinkedService != "" {
			sfLS = rctx.SnowflakeLinkedService
		}
	}
	if cfg.Source.LinkedService == "" {
		cfg.Source.LinkedService = blobLS
	}
	if cfg.Sink.LinkedService == "" {
		cfg.Sink.LinkedService = sfLS
	}
}
