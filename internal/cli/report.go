package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hourlog/internal/app"
	"hourlog/internal/report"
	"hourlog/internal/timecalc"
)

// NewHoursCommand creates the hours command.
func NewHoursCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hours <subject-id>",
		Short: "Show a subject's accumulated hours",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				hist, err := a.Engine.SubjectHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(hist, func(w io.Writer) {
					fmt.Fprintf(w, "%s  %s  %s hours in %d records\n",
						hist.Subject.ID, hist.Subject.Name, timecalc.FormatHours(hist.TotalHours), len(hist.Records))
					if rootOpts.Verbose {
						for _, r := range hist.Records {
							printRecord(w, r)
						}
					}
				})
			})
		},
	}
}

// NewPresenceCommand creates the presence command.
func NewPresenceCommand(rootOpts *RootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Summarize one day: active subjects, open sessions, hours logged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				p, err := a.Engine.DailyPresence(ctx, date)
				if err != nil {
					return err
				}
				return out.Success(p, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d active subjects, %d open sessions, %s hours logged\n",
						p.Date, p.ActiveSubjects, p.OpenSessions, timecalc.FormatHours(p.HoursLogged))
					for _, r := range p.Records {
						printRecord(w, r)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to summarize (YYYY-MM-DD, default today)")
	return cmd
}

// NewReportCommand creates the grouped hours report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Rank active subjects by hours and total them per group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var keyFn report.GroupKeyFunc
			switch group {
			case "program":
				keyFn = report.ByProgram
			case "term":
				keyFn = report.ByTerm
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --group %q: must be program or term", group))
			}
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				rep, err := a.Engine.ReportByGroup(ctx, keyFn)
				if err != nil {
					return err
				}
				return out.Success(rep, func(w io.Writer) { printGroupReport(w, rep) })
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "program", "grouping (program|term)")
	return cmd
}

func printGroupReport(w io.Writer, rep report.GroupReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tPROGRAM\tTERM\tHOURS")
	for i, sh := range rep.Ranked {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, sh.Subject.Name, sh.Subject.Program, sh.Subject.Term, timecalc.FormatHours(sh.TotalHours))
	}
	tw.Flush()

	keys := make([]string, 0, len(rep.Groups))
	for k := range rep.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tSUBJECTS\tHOURS")
	for _, k := range keys {
		g := rep.Groups[k]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", k, g.SubjectCount, timecalc.FormatHours(g.TotalHours))
	}
	tw.Flush()
	fmt.Fprintf(w, "\ntotal %s hours, average %s per subject\n", timecalc.FormatHours(rep.TotalHours), timecalc.FormatHours(rep.Average))
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export <records|summary|summary-xlsx>",
		Short:     "Write a CSV or XLSX export",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"records", "summary", "summary-xlsx"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if kind == "summary-xlsx" && output == "" {
				return NewExitError(ExitCommandError, "summary-xlsx needs --output")
			}
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				var write func(context.Context, io.Writer) error
				switch kind {
				case "records":
					write = a.Engine.ExportRecordsCSV
				case "summary":
					write = a.Engine.ExportSummaryCSV
				case "summary-xlsx":
					write = a.Engine.ExportSummaryXLSX
				default:
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown export %q", kind))
				}
				if output == "" {
					return write(ctx, out.Writer)
				}
				return writeFile(ctx, output, write)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default stdout)")
	return cmd
}

func writeFile(ctx context.Context, path string, write func(context.Context, io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "create output", err)
	}
	if err := write(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
