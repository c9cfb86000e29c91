package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/llm"
	"github.com/christy136/AutoFlowAI/internal/remote/remotetest"
	"github.com/christy136/AutoFlowAI/internal/service"
	"github.com/christy136/AutoFlowAI/pkg/models"
	"github.com/christy136/AutoFlowAI/pkg/server"
)

var generateCmd = &cobra.Command{
	Use:   "generate [requirement...]",
	Short: "Generate, save and deploy a pipeline from a requirement",
	Long: `Generate interprets the requirement with the configured LLM, reconciles the
target factory, creates missing linked services, validates and saves the
pipeline JSON, then deploys it unless --simulate is set.

With --offline the LLM reply is read from --response-file and Azure is
replaced by an in-memory factory seeded from the resolved context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, _ := cmd.Flags().GetStringToString("context")
		simulate, _ := cmd.Flags().GetBool("simulate")

		srv, err := newServer(cmd, values)
		if err != nil {
			return err
		}
		defer srv.Close(context.Background())

		res, err := srv.Service.Generate(cmd.Context(), service.GenerateRequest{
			Requirement: strings.Join(args, " "),
			Context:     values,
			Simulate:    simulate,
		})
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status == models.StatusBlocked {
			return fmt.Errorf("generate blocked at %s", res.Stage)
		}
		return nil
	},
}

var precheckCmd = &cobra.Command{
	Use:   "precheck",
	Short: "Check the target factory and create missing linked services",
	RunE: func(cmd *cobra.Command, args []string) error {
		values, _ := cmd.Flags().GetStringToString("context")
		noFix, _ := cmd.Flags().GetBool("no-autofix")

		srv, err := newServer(cmd, values)
		if err != nil {
			return err
		}
		defer srv.Close(context.Background())

		autoFix := !noFix
		res := srv.Service.Precheck(cmd.Context(), service.PrecheckRequest{Context: values, AutoFix: &autoFix})
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status == models.StatusMissingInputs {
			return errors.New("precheck needs more inputs")
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringToString("context", nil, "Context values as key=value (repeatable)")
	generateCmd.Flags().Bool("simulate", false, "Validate and save without deploying")
	generateCmd.Flags().Bool("offline", false, "Use --response-file and an in-memory factory")
	generateCmd.Flags().String("response-file", "", "File holding the LLM reply for --offline")

	precheckCmd.Flags().StringToString("context", nil, "Context values as key=value (repeatable)")
	precheckCmd.Flags().Bool("no-autofix", false, "Only report; do not create missing objects")
	precheckCmd.Flags().Bool("offline", false, "Use an in-memory factory")
}

// newServer builds the service stack for one command. Offline runs swap in
// a static LLM reply and an in-memory factory holding the objects the
// resolved context names.
func newServer(cmd *cobra.Command, values map[string]string) (*server.Server, error) {
	cfg := config.Load()
	opts := server.Options{SkipTelemetry: true}

	offline, _ := cmd.Flags().GetBool("offline")
	var fake *remotetest.Fake
	if offline {
		fake = remotetest.New("", "", "")
		opts.Remote = fake
		opts.Generator = llm.Static{Err: errors.New("no LLM in offline mode")}
		if cmd.Flags().Lookup("response-file") != nil {
			path, _ := cmd.Flags().GetString("response-file")
			if path == "" {
				return nil, errors.New("--offline requires --response-file")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read response file: %w", err)
			}
			opts.Generator = llm.Static{Content: string(data)}
		}
	}

	srv, err := server.NewWithConfig(cmd.Context(), cfg, opts)
	if err != nil {
		return nil, err
	}
	if fake != nil {
		seed(fake, srv.Service.Resolve(values))
	}
	return srv, nil
}

func seed(f *remotetest.Fake, rctx *models.ResolvedContext) {
	f.Subscriptions = []string{rctx.SubscriptionID}
	f.ResourceGroup = rctx.ResourceGroup
	f.Factory = rctx.FactoryName
	if rctx.StorageAccountName != "" {
		f.StorageAccounts[rctx.StorageAccountName] = true
	}
	if rctx.Container != "" {
		var blobs []string
		if rctx.BlobName != "" {
			blobs = append(blobs, rctx.BlobName)
		}
		f.Containers[rctx.Container] = blobs
	}
}
