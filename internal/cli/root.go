// Package cli implements termctl, the command-line client for termhub.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCmd builds the termctl command tree. Each call gets its own viper
// instance so commands can be constructed repeatedly in tests.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		cfg     = &Config{}
	)
	v := viper.New()

	root := &cobra.Command{
		Use:   "termctl",
		Short: "Terminal session client for termhub",
		Long: `termctl lists terminal targets and sessions on a termhub server and can
attach the local terminal directly to a target's terminal backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(v, cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			*cfg = *loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.termctl/config.yaml)")
	root.PersistentFlags().String("hub-url", "", "termhub server URL")
	root.PersistentFlags().String("backend-url", "", "terminal backend URL used by attach")

	v.BindPFlag("hub.url", root.PersistentFlags().Lookup("hub-url"))
	v.BindPFlag("backend.url", root.PersistentFlags().Lookup("backend-url"))

	root.AddCommand(
		newTargetsCmd(cfg),
		newSessionsCmd(cfg),
		newAttachCmd(cfg),
	)
	return root
}

// Execute runs termctl and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
