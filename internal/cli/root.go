// Package cli implements the autoflow command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "autoflow",
	Short: "autoflow: natural-language Azure Data Factory pipelines",
	Long: `autoflow turns a free-text requirement into an Azure Data Factory copy
pipeline from Blob Storage to Snowflake. It checks the target factory,
creates missing linked services and datasets, saves the pipeline JSON and
deploys it with an optional daily trigger.

Context is merged from --context values, environment variables and the
active profiles. Secrets are only read from the request or the environment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("log-level")
		level, err := zerolog.ParseLevel(levelName)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q", levelName)
		}
		zerolog.SetGlobalLevel(level)
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(precheckCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(profilesCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
