package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/christy136/AutoFlowAI/internal/config"
	"github.com/christy136/AutoFlowAI/internal/profiles"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage account and use-case profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles and the active pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		listing, err := profileStore().List()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), listing)
	},
}

var profilesActivateCmd = &cobra.Command{
	Use:   "activate [account] [usecase]",
	Short: "Mark a saved account and use-case profile as active",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := profileStore().Activate(args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "active profiles: account=%s usecase=%s\n", args[0], args[1])
		return nil
	},
}

func profileStore() *profiles.Store {
	return profiles.NewStore(config.Load().Paths.ProfilesDir)
}

func init() {
	profilesCmd.AddCommand(profilesListCmd)
	profilesCmd.AddCommand(profilesActivateCmd)
}
