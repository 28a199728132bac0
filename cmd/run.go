package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adtechlab/newswire/internal/app"
	"github.com/adtechlab/newswire/internal/pipeline"
)

// newRunCmd creates the 'run' subcommand: a one-shot pipeline execution
// that exits when the work commits. Useful for backfills and debugging.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [stage]",
		Short: "Execute the pipeline once and exit",
		Long: `Runs fetch, dedup, and filter once in order. With a stage argument
(fetch, dedup, or filter), runs only that stage against the latest
committed upstream snapshot.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stage pipeline.StageName
			if len(args) == 1 {
				stage = pipeline.StageName(args[0])
				if !stage.Valid() {
					return fmt.Errorf("unknown stage %q", args[0])
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			application, err := app.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer func() {
				_ = application.Close(cmd.Context())
			}()

			return application.RunOnce(cmd.Context(), stage)
		},
	}
}
