package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adtechlab/newswire/internal/app"
)

// newServeCmd creates the 'serve' subcommand: the long-running service with
// the scheduler, worker, sensor, and admin API.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline service",
		Long: `Starts the scheduler, the pipeline worker, the failure sensor, and the
admin HTTP API, and blocks until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			return application.Run(cmd.Context())
		},
	}
}
