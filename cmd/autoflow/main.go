// Command autoflow turns natural-language requirements into Azure Data Factory pipelines.
//
// The autoflow binary serves the HTTP API (autoflow serve) and runs the
// same operations from the command line:
//   - generate: requirement → saved and deployed copy pipeline
//   - precheck: reconcile the target factory and auto-fix what it can
//   - validate: structural check of a saved pipeline file
//   - profiles: list and activate non-secret context profiles

package main

import (
	"fmt"
	"os"

	"github.com/christy136/AutoFlowAI/internal/cli"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cli.SetVersion(Version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
