// Package server provides the public entry point for initializing the
// AutoFlowAI service.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.Close(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
//
// The CLI uses NewWithConfig with Options to swap the LLM backend or the
// Azure factory for dry runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/christy136/AutoFlowAI/internal/api"
	"github.com/christy136/AutoFlowAI/internal/api/handlers"
	"github.com/christy136/AutoFlowAI/internal/artifacts"
	"github.com/christy136/AutoFlowAI/internal/audit"
	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/guardrails"
	"github.com/christy136/AutoFlowAI/internal/llm"
	"github.com/christy136/AutoFlowAI/internal/metrics"
	"github.com/christy136/AutoFlowAI/internal/notify"
	"github.com/christy136/AutoFlowAI/internal/profiles"
	"github.com/christy136/AutoFlowAI/internal/prompt"
	"github.com/christy136/AutoFlowAI/internal/remote"
	"github.com/christy136/AutoFlowAI/internal/remote/azure"
	"github.com/christy136/AutoFlowAI/internal/retention"
	"github.com/christy136/AutoFlowAI/internal/service"
	"github.com/christy136/AutoFlowAI/internal/telemetry"
)

// Options overrides the external backends. Zero values select the
// configured LLM client and the Azure factory.
type Options struct {
	Generator llm.Generator
	Remote    remote.Factory
	// SkipTelemetry leaves the global no-op tracer in place.
	SkipTelemetry bool
}

// Server holds the initialized AutoFlowAI components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Service runs generate and precheck. The CLI calls it directly.
	Service *service.Service

	// Registry holds the service metrics served on /metrics.
	Registry *prometheus.Registry

	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Janitor purges expired audit events. Nil when retention is disabled;
	// serve runs it in the background.
	Janitor *retention.Janitor

	audit    *audit.Log
	shutdown func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load(), Options{})
}

// NewWithConfig initializes all components with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	shutdown := func(context.Context) error { return nil }
	if !opts.SkipTelemetry {
		var err error
		shutdown, err = telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	auditLog, err := newAuditLog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.LoadRegistry(cfg.Paths.PromptRegistry)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if cfg.Paths.PromptRegistry != "" {
		log.Info().Str("path", cfg.Paths.PromptRegistry).Msg("✅ Prompt registry loaded")
	}

	gen := opts.Generator
	if gen == nil {
		gen = llm.NewClient(cfg.LLM)
		log.Info().Str("kind", cfg.LLM.Kind).Str("model", cfg.LLM.Model).Msg("✅ LLM client initialized")
	}
	factory := opts.Remote
	if factory == nil {
		factory = azure.NewFactory(cfg.Azure)
	}

	svc := service.New(service.Options{
		Config:    cfg,
		Generator: gen,
		Remote:    factory,
		Profiles:  profiles.NewStore(cfg.Paths.ProfilesDir),
		Artifacts: artifacts.NewStore(cfg.Paths.OutputDir),
		Prompts:   prompts,
		Audit:     auditLog,
		Metrics:   m,
		Notifier:  notify.NewWebhook(cfg.Notify),
		Guard:     guardrails.New(cfg.Guard),
	})

	return &Server{
		Handler:  api.NewRouter(cfg, handlers.New(svc), registry),
		Service:  svc,
		Registry: registry,
		Config:   cfg,
		Port:     cfg.Port,
		Janitor:  retention.NewJanitor(auditLog, cfg.Retention),
		audit:    auditLog,
		shutdown: shutdown,
	}, nil
}

// Close flushes telemetry and closes the audit sinks.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(s.shutdown(ctx), s.audit.Close())
}

// newAuditLog always writes to the log directory. A reachable DATABASE_URL
// adds a PostgreSQL sink; an unreachable one is logged and skipped.
func newAuditLog(ctx context.Context, cfg *config.Config) (*audit.Log, error) {
	file, err := audit.NewFileSink(cfg.Paths.LogDir)
	if err != nil {
		return nil, err
	}
	sinks := []audit.Sink{file}
	log.Info().Str("path", file.Path()).Msg("✅ Audit log initialized")

	if cfg.Database.URL != "" {
		pg, err := audit.NewPostgresSink(ctx, cfg.Database.URL, cfg.Database.AuditTable, cfg.Database.MaxConnections)
		if err != nil {
			log.Warn().Err(err).Msg("PostgreSQL audit sink unavailable, using file sink only")
		} else {
			sinks = append(sinks, pg)
			log.Info().Str("table", cfg.Database.AuditTable).Msg("✅ PostgreSQL audit sink initialized")
		}
	}
	return audit.New(sinks...), nil
}
