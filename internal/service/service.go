// Package service runs the generate and precheck operations end to end:
// context resolution, interpretation, reconciliation, auto-fix, artifact
// generation, persistence and deployment.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/christy136/AutoFlowAI/internal/artifacts"
	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/deploy"
	"github.com/christy136/AutoFlowAI/internal/generator"
	"github.com/christy136/AutoFlowAI/internal/guardrails"
	"github.com/christy136/AutoFlowAI/internal/interpreter"
	"github.com/christy136/AutoFlowAI/internal/llm"
	"github.com/christy136/AutoFlowAI/internal/metrics"
	"github.com/christy136/AutoFlowAI/internal/notify"
	"github.com/christy136/AutoFlowAI/internal/precheck"
	"github.com/christy136/AutoFlowAI/internal/profiles"
	"github.com/christy136/AutoFlowAI/internal/prompt"
	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/internal/resolver"
	"github.com/christy136/AutoFlowAI/pkg/models"
)

// Stages reported on blocked results and operation errors.
const (
	StageInput     = "input"
	StageInterpret = "llm_parse"
	StagePrecheck  = "precheck"
	StageValidate  = "adf_json"
	StageSave      = "save"
	StageDeploy    = "deploy"
)

// Error kinds. The HTTP layer maps them to status codes.
const (
	KindInvalidInput   = "invalid_input"
	KindInterpretation = "interpretation"
	KindValidation     = "validation"
	KindPersistence    = "persistence"
)

// OperationError is a failure that aborts an operation before it can
// produce a result.
type OperationError struct {
	Stage string
	Kind  string
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// SecretKeys are the environment variables whose presence the secrets
// status reports.
var SecretKeys = []string{"OPENROUTER_API_KEY", "STORAGE_ACCOUNT_KEY", "SNOWFLAKE_CONNECTION_STRING"}

// Options wires a Service. Generator, Remote, Profiles and Artifacts are
// required; the rest fall back to no-op or built-in defaults.
type Options struct {
	Config    *config.Config
	Generator llm.Generator
	Remote    remote.Factory
	Profiles  *profiles.Store
	Artifacts *artifacts.Store
	Prompts   *prompt.Builder
	Audit     *audit.Log
	Metrics   *metrics.Metrics
	Notifier  *notify.Webhook
	Guard     *guardrails.Guard
	Env       resolver.Lookup
}

// Service is safe for concurrent use.
type Service struct {
	cfg         *config.Config
	resolver    *resolver.Resolver
	interpreter *interpreter.Interpreter
	checker     *precheck.Checker
	deployer    *deploy.Deployer
	profiles    *profiles.Store
	artifacts   *artifacts.Store
	audit       *audit.Log
	metrics     *metrics.Metrics
	notifier    *notify.Webhook
	guard       *guardrails.Guard
	env         resolver.Lookup
}

// New builds a service from opts.
func New(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	env := opts.Env
	if env == nil {
		env = resolver.OSEnv
	}
	gen := &instrumented{gen: opts.Generator, metrics: opts.Metrics}
	return &Service{
		cfg:         cfg,
		resolver:    resolver.New(cfg.Azure),
		interpreter: interpreter.New(gen, opts.Prompts, cfg.Azure),
		checker:     precheck.New(opts.Remote),
		deployer:    deploy.New(opts.Remote),
		profiles:    opts.Profiles,
		artifacts:   opts.Artifacts,
		audit:       opts.Audit,
		metrics:     opts.Metrics,
		notifier:    opts.Notifier,
		guard:       opts.Guard,
		env:         env,
	}
}

// GenerateRequest is the input of Generate.
type GenerateRequest struct {
	Requirement string            `json:"requirement"`
	Context     map[string]string `json:"context,omitempty"`
	Simulate    bool              `json:"simulate,omitempty"`
}

// PrecheckRequest is the input of Precheck. A nil AutoFix means true.
type PrecheckRequest struct {
	Context map[string]string `json:"context,omitempty"`
	AutoFix *bool             `json:"auto_fix,omitempty"`
}

// Resolve builds the context for one request from the request values, the
// environment and the active profiles.
func (s *Service) Resolve(request map[string]string) *models.ResolvedContext {
	var active models.Profiles
	if s.profiles != nil {
		p, err := s.profiles.Active()
		if err != nil {
			log.Warn().Err(err).Msg("Active profiles unreadable, continuing without them")
		} else {
			active = p
		}
	}
	return s.resolver.Resolve(request, s.env, active)
}

// Generate turns a requirement into a saved and, unless simulating,
// deployed pipeline.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (result *models.GenerateResult, err error) {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "service.generate")
	defer span.End()
	start := time.Now()
	id := uuid.NewString()
	var rctx *models.ResolvedContext
	defer func() {
		status := models.OperationStatus("error")
		if result != nil {
			status = result.Status
			if nerr := s.notifier.Send(ctx, notify.FromResult(result, rctx)); nerr != nil {
				log.Warn().Err(nerr).Str("operation", id).Msg("Outcome webhook failed")
			}
		}
		s.metrics.Operation("generate", status, time.Since(start))
		span.SetAttributes(attribute.String("generate.status", string(status)))
	}()

	requirement := strings.TrimSpace(req.Requirement)
	if requirement == "" {
		return nil, &OperationError{Stage: StageInput, Kind: KindInvalidInput, Err: errors.New("missing 'requirement'")}
	}
	if eval := s.guard.Evaluate(requirement); !eval.Passed {
		err := fmt.Errorf("requirement rejected: %s", eval.Failures())
		s.record(ctx, StageInput, err, map[string]interface{}{"operation": id})
		return nil, &OperationError{Stage: StageInput, Kind: KindInvalidInput, Err: err}
	}
	rctx = s.Resolve(req.Context)
	logger := log.With().Str("operation", id).Logger()

	requirement, secrets := guardrails.Redact(requirement)
	if len(secrets) > 0 {
		logger.Warn().Strs("kinds", secrets).Msg("Redacted credentials from requirement")
	}

	// Interpret
	cfg, err := s.interpreter.Interpret(ctx, requirement, rctx)
	if err != nil {
		s.record(ctx, StageInterpret, err, map[string]interface{}{"operation": id})
		return nil, &OperationError{Stage: StageInterpret, Kind: KindInterpretation, Err: err}
	}

	// Reconcile
	initial := s.checker.Check(ctx, rctx)
	s.metrics.Report(initial)
	if missing := precheck.MissingInputs(initial, rctx); len(missing) > 0 {
		logger.Info().Int("missing_inputs", len(missing)).Msg("Generate blocked at precheck")
		return &models.GenerateResult{
			ID:            id,
			Status:        models.StatusBlocked,
			Stage:         StagePrecheck,
			Initial:       initial,
			MissingInputs: missing,
		}, nil
	}

	fixed, actions := s.checker.AutoFix(ctx, rctx, initial)
	s.metrics.AutoFix(actions)
	var final *models.PrerequisiteReport
	if fixed {
		final = s.checker.Check(ctx, rctx)
		s.metrics.Report(final)
	}

	// Build and validate
	artifact := generator.Generate(cfg)
	check := generator.Validate(artifact)
	if !check.OK {
		err := fmt.Errorf("validation failed: %s", check.Reason)
		s.record(ctx, StageValidate, err, map[string]interface{}{"operation": id, "pipeline": artifact.Name})
		return nil, &OperationError{Stage: StageValidate, Kind: KindValidation, Err: err}
	}

	path, err := s.artifacts.Save(artifact)
	if err != nil {
		s.record(ctx, StageSave, err, map[string]interface{}{"operation": id, "pipeline": artifact.Name})
		return nil, &OperationError{Stage: StageSave, Kind: KindPersistence, Err: err}
	}
	s.metrics.ArtifactSaved()

	result = &models.GenerateResult{
		ID:             id,
		Initial:        initial,
		Final:          final,
		Pipeline:       artifact,
		SavedTo:        path,
		AutoFixActions: actions,
		Warnings:       check.Warnings,
	}
	if req.Simulate {
		result.Status = models.StatusValidated
		result.Message = "Validated & saved. Skipped deployment (simulate=true)."
		logger.Info().Str("pipeline", artifact.Name).Str("path", path).Msg("Pipeline validated")
		return result, nil
	}

	// Deploy
	dr := s.deployer.Deploy(ctx, artifact, cfg, rctx)
	s.metrics.Deploy(dr)
	result.DeployResult = dr
	switch dr.Status {
	case models.DeployDeployed:
		result.Status = models.StatusDeployed
		logger.Info().Str("pipeline", artifact.Name).Msg("Pipeline generated and deployed")
	default:
		result.Status = models.StatusBlocked
		result.Stage = StageDeploy
		result.Message = dr.Reason
		if dr.Status == models.DeployError {
			s.record(ctx, StageDeploy, errors.New(dr.Reason), map[string]interface{}{
				"operation": id, "pipeline": artifact.Name, "failed_object": dr.FailedObject,
			})
		}
	}
	return result, nil
}

// Precheck reconciles the resolved context and, when asked, remediates what
// it can.
func (s *Service) Precheck(ctx context.Context, req PrecheckRequest) (result *models.PrecheckResult) {
	ctx, span := otel.Tracer("autoflow").Start(ctx, "service.precheck")
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.Operation("precheck", result.Status, time.Since(start))
	}()

	autoFix := req.AutoFix == nil || *req.AutoFix
	rctx := s.Resolve(req.Context)
	id := uuid.NewString()

	initial := s.checker.Check(ctx, rctx)
	s.metrics.Report(initial)
	missing := precheck.MissingInputs(initial, rctx)
	if len(missing) > 0 && autoFix {
		return &models.PrecheckResult{
			ID:             id,
			Status:         models.StatusMissingInputs,
			Initial:        initial,
			MissingInputs:  missing,
			AutoFixActions: []models.AutoFixAction{},
			Message:        "Provide these inputs and call precheck again with auto_fix=true",
		}
	}

	result = &models.PrecheckResult{
		ID:             id,
		Status:         models.StatusOK,
		Initial:        initial,
		Final:          initial,
		AutoFixActions: []models.AutoFixAction{},
	}
	if autoFix {
		fixed, actions := s.checker.AutoFix(ctx, rctx, initial)
		s.metrics.AutoFix(actions)
		result.AutoFixActions = actions
		if fixed {
			result.Final = s.checker.Check(ctx, rctx)
		}
	}
	return result
}

// ValidateArtifact runs the structural validator on a caller-supplied
// pipeline document.
func (s *Service) ValidateArtifact(a *models.PipelineArtifact) generator.Result {
	return generator.Validate(a)
}

// SecretsStatus returns redacted previews of the secret environment
// variables.
func (s *Service) SecretsStatus() map[string]string {
	vals := make(map[string]string, len(SecretKeys))
	for _, k := range SecretKeys {
		vals[k] = s.env(k)
	}
	return profiles.RedactMap(vals)
}

// Profiles returns the profile store.
func (s *Service) Profiles() *profiles.Store { return s.profiles }

// Artifacts returns the artifact store.
func (s *Service) Artifacts() *artifacts.Store { return s.artifacts }

// AuditEvents returns the most recent recorded failures.
func (s *Service) AuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	return s.audit.Recent(ctx, limit)
}

func (s *Service) record(ctx context.Context, stage string, err error, data map[string]interface{}) {
	ev := s.audit.Record(ctx, stage, err, data)
	s.metrics.Audit(ev)
	log.Warn().Err(err).Str("stage", stage).Str("type", ev.Type).Msg("Operation failed")
}

// instrumented times every completion.
type instrumented struct {
	gen     llm.Generator
	metrics *metrics.Metrics
}

func (i *instrumented) Generate(ctx context.Context, p string) (*models.Completion, error) {
	start := time.Now()
	resp, err := i.gen.Generate(ctx, p)
	i.metrics.LLM(err, time.Since(start))
	return resp, err
}
