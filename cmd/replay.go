package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

func replayCommand(opts *rootOptions) *cobra.Command {
	var from, to, employee string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild attendance records from the event log",
		Long: "Recompute every record in [--from, --to] from its stored match events. A record whose\n" +
			"stored state differs gets a new revision; unchanged records are left alone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()

			start, err := a.dateFlag(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end := start
			if to != "" {
				if end, err = a.dateFlag(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}

			records, err := a.ledger.ListLatest(cmd.Context(), repository.LedgerQuery{
				EmployeeID: employee,
				FromDate:   start.Format(models.DateLayout),
				ToDate:     end.Format(models.DateLayout),
			})
			if err != nil {
				return err
			}

			var rebuilt int
			for _, rec := range records {
				key := models.ShiftKey{EmployeeID: rec.EmployeeID, ShiftDate: rec.ShiftDate}
				_, changed, err := a.reconciler.Rebuild(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("rebuild %s: %w", key, err)
				}
				if changed {
					rebuilt++
					a.log.Info("record rebuilt", "employee_id", key.EmployeeID, "shift_date", key.ShiftDate)
				}
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "examined %d records, rebuilt %d\n", len(records), rebuilt)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First shift date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "Last shift date, YYYY-MM-DD (default --from)")
	cmd.Flags().StringVarP(&employee, "employee", "e", "", "Only rebuild this employee")
	return cmd
}
