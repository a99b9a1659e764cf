// Package cli implements the chetter command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanmeadows/chetter/internal/config"
	"github.com/alanmeadows/chetter/internal/logging"
)

var (
	verbose    bool
	configPath string
	appConfig  *config.Config

	rootCmd = &cobra.Command{
		Use:   "chetter",
		Short: "Track pull request history as git refs",
		Long: `Chetter receives GitHub pull request webhooks and keeps a versioned trail of refs
for every push and review, so reviewers can diff what changed since they last looked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/chetter/chetter.jsonc)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logging.Setup(verbose)

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appConfig = cfg
		return nil
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(deliveriesCmd)
}

func Execute() error {
	return rootCmd.Execute()
}
