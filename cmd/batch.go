package cmd

import (
	"github.com/spf13/cobra"
)

func newBatchCmd(o *options) *cobra.Command {
	var (
		workers int
		summary string
		skip    bool
	)
	cmd := &cobra.Command{
		Use:   "batch <days-dir>",
		Short: "Simulate every day folder of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("workers") {
				cfg.Batch.Workers = workers
			}
			if fl.Changed("summary") {
				cfg.Batch.Summary = summary
			}
			if fl.Changed("skip-existing") {
				cfg.Batch.SkipExisting = skip
			}
			if err := cfg.Batch.Validate(); err != nil {
				return err
			}

			ctx, a, done, err := o.start(cmd, cfg)
			if err != nil {
				return err
			}
			defer done()
			report, err := a.Batch(ctx, args[0])
			if report != nil {
				printBatch(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&workers, "workers", "w", 0, "number of days simulated concurrently")
	fl.StringVar(&summary, "summary", "", "multi-day summary CSV file")
	fl.BoolVar(&skip, "skip-existing", false, "skip days whose result file exists")
	return cmd
}
