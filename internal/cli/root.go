// Package cli implements hoursctl, the operator command line for the ledger.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hourlog/internal/app"
	"hourlog/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Store   string // overrides STORE_BACKEND
	DataDir string // overrides DATA_DIR and the sqlite path

	now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for hoursctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{now: time.Now})
}

// Execute runs hoursctl with args and returns the process exit code. Errors
// are reported in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{now: time.Now}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stderr}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	code := "error"
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Message != "" {
		code = exitErr.Message
	}
	_ = f.Error(code, err.Error())
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hoursctl",
		Short: "Service hours attendance ledger",
		Long: `hoursctl drives the attendance ledger directly against its storage.

It reads the same environment (and .env file) as the API server, so both
can share one data directory or database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "storage backend (csv|sqlite|postgres|memory)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "data directory for the csv and sqlite backends")

	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSubjectCommand(opts))
	cmd.AddCommand(NewClockInCommand(opts))
	cmd.AddCommand(NewClockOutCommand(opts))
	cmd.AddCommand(NewManualCommand(opts))
	cmd.AddCommand(NewHoursCommand(opts))
	cmd.AddCommand(NewPresenceCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openLedger wires the ledger from the environment plus the global flags.
// Logs go to stderr so they never mix with command output.
func (o *RootOptions) openLedger(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg := config.Load()
	if o.Store != "" {
		cfg.StoreBackend = o.Store
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		cfg.SQLitePath = filepath.Join(o.DataDir, "hourlog.db")
	}
	log := cfg.Logger()
	log.SetOutput(cmd.ErrOrStderr())
	if !o.Verbose {
		log.SetLevel(logrus.WarnLevel)
	}
	now := o.now
	if now == nil {
		now = time.Now
	}
	a, err := app.Open(ctx, cfg, log, app.WithClock(now))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger", err)
	}
	return a, nil
}

// withLedger opens the ledger, runs fn and closes it again.
func (o *RootOptions) withLedger(cmd *cobra.Command, fn func(ctx context.Context, a *app.App, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	out := &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
	return classify(fn(ctx, a, out))
}
