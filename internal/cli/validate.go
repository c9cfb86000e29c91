package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/christy136/AutoFlowAI/internal/artifacts"
	"github.com/christy136/AutoFlowAI/internal/generator"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a saved pipeline JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := artifacts.Load(args[0])
		if err != nil {
			return err
		}
		res := generator.Validate(a)
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if !res.OK {
			return errors.New(res.Reason)
		}
		return nil
	},
}
