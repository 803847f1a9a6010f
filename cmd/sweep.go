package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"face-attendance/internal/services"
)

func sweepCommand(opts *rootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one evaluator pass",
		Long: "Close finished records, force absences and raise alerts once. With --date only that\n" +
			"day is evaluated. Raised alerts are delivered by the next serve dispatcher pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			var result services.SweepResult
			if date == "" {
				result, err = a.evaluator.Sweep(cmd.Context(), now)
			} else {
				day, derr := a.dateFlag(date)
				if derr != nil {
					return derr
				}
				result, err = a.evaluator.Finalize(cmd.Context(), day, now)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Evaluate only this shift date (YYYY-MM-DD)")
	return cmd
}
