package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a config file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rc)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			rc.logger().Debug("config valid", "path", rc.ConfigPath)
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s %s .. %s (%s, %s)\n",
				cfg.Data.Path, cfg.Simulation.Start, cfg.Simulation.End,
				cfg.Model.Algorithm, cfg.Decision.Strategy)
			return nil
		},
	}
}
