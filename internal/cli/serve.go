package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the AutoFlowAI HTTP API. Configuration is read from the environment
(AUTOFLOW_PORT, OPENROUTER_API_KEY, DATABASE_URL, OTEL_ENABLED, ...).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Port = port
		}
		if version != "dev" {
			cfg.Version = version
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := server.NewWithConfig(ctx, cfg, server.Options{})
		if err != nil {
			return fmt.Errorf("init server: %w", err)
		}
		defer func() {
			if err := srv.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Shutdown cleanup failed")
			}
		}()

		httpServer := &http.Server{
			Addr:         fmt.Sprintf(":%d", srv.Port),
			Handler:      srv.Handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  120 * time.Second,
		}

		go srv.Janitor.Start(ctx)

		go func() {
			<-ctx.Done()
			log.Info().Msg("🛑 Shutting down gracefully...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()

		log.Info().Int("port", srv.Port).Str("version", cfg.Version).Msg("🚀 AutoFlowAI listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "Port to listen on (default $AUTOFLOW_PORT or 8080)")
}
