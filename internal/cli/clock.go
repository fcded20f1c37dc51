package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hourlog/internal/app"
	"hourlog/internal/attendance"
	"hourlog/internal/model"
)

func printRecord(w io.Writer, r model.Record) {
	out := r.ClockOut
	if out == "" {
		out = "open"
	}
	fmt.Fprintf(w, "%s  %s  %s  %s-%s", r.ID, r.SubjectID, r.Date, r.ClockIn, out)
	if r.DurationHours != "" {
		fmt.Fprintf(w, "  %sh", r.DurationHours)
	}
	fmt.Fprintf(w, "  %s\n", r.Origin)
}

// NewClockInCommand creates the clock-in command.
func NewClockInCommand(rootOpts *RootOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "clock-in <subject-id>",
		Short: "Open today's session for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := a.Service.ClockIn(ctx, args[0], notes)
				if err != nil {
					return err
				}
				return out.Success(rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

// NewClockOutCommand creates the clock-out command.
func NewClockOutCommand(rootOpts *RootOptions) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "clock-out <subject-id>",
		Short: "Close the subject's open session and record its duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := a.Service.ClockOut(ctx, args[0], notes)
				if err != nil {
					return err
				}
				return out.Success(rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "replaces the stored notes when set")
	return cmd
}

// NewManualCommand creates the manual backfill command.
func NewManualCommand(rootOpts *RootOptions) *cobra.Command {
	var e attendance.ManualEntry
	cmd := &cobra.Command{
		Use:   "manual <subject-id>",
		Short: "Backfill a closed session",
		Long: `Backfill a closed session for any date.

Manual records are not limited to one per day. When --hours is omitted, or is
not a non-negative number, the duration is computed from --in and --out.`,
		Example: `  hoursctl manual X7aP2mQz --date 2026-10-10 --in 08:00 --out 12:30`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e.SubjectID = args[0]
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rec, err := a.Service.AddManualRecord(ctx, e)
				if err != nil {
					return err
				}
				return out.Success(rec, func(w io.Writer) { printRecord(w, rec) })
			})
		},
	}
	cmd.Flags().StringVar(&e.Date, "date", "", "session date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&e.ClockIn, "in", "", "clock-in time (HH:MM)")
	cmd.Flags().StringVar(&e.ClockOut, "out", "", "clock-out time (HH:MM)")
	cmd.Flags().StringVar(&e.DurationHours, "hours", "", "duration override in hours")
	cmd.Flags().StringVar(&e.Notes, "notes", "", "free-form notes")
	return cmd
}
