package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"face-attendance/internal/models"
	"face-attendance/internal/services"
)

func reportCommand(opts *rootOptions) *cobra.Command {
	var (
		from, to   string
		employee   string
		bucketDays int
		roster     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print attendance analytics",
		Long: "Summarize attendance over [--from, --to] for one employee or all of them.\n" +
			"--bucket splits the range into a trend, --roster prints who attended --from.",
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

			ctx, out := cmd.Context(), cmd.OutOrStdout()
			loc := a.policy.Location

			if roster {
				r, err := a.analytics.DailyRoster(ctx, start)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, r)
				}
				_, err = fmt.Fprintln(out, services.FormatRoster(r, loc))
				return err
			}

			q := services.AnalyticsQuery{EmployeeID: employee, From: start, To: end}
			var windows []*models.AnalyticsWindow
			if bucketDays > 0 {
				if windows, err = a.analytics.Trend(ctx, q, bucketDays); err != nil {
					return err
				}
			} else {
				w, err := a.analytics.Window(ctx, q)
				if err != nil {
					return err
				}
				windows = append(windows, w)
			}

			if asJSON {
				return printJSON(out, windows)
			}
			for _, w := range windows {
				if _, err := fmt.Fprintln(out, services.FormatWindow(w)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First shift date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "Last shift date, YYYY-MM-DD (default --from)")
	cmd.Flags().StringVarP(&employee, "employee", "e", models.AllEmployees, "Employee id or \"all\"")
	cmd.Flags().IntVar(&bucketDays, "bucket", 0, "Split the range into buckets of this many days")
	cmd.Flags().BoolVar(&roster, "roster", false, "Print the daily roster of --from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
