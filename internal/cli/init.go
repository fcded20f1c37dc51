package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"hourlog/internal/app"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Operator string
	Password string
	Name     string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the ledger tables and an operator account",
		Long: `Create any missing ledger tables in the configured storage.

With --operator and --password the operator is created, or its password is
reset. Without them the DEFAULT_OPERATOR account is seeded when the users
table is still empty and DEFAULT_OPERATOR_PASSWORD is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				return runInit(ctx, opts, a, out)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator username to create or reset")
	cmd.Flags().StringVar(&opts.Password, "password", "", "operator password")
	cmd.Flags().StringVar(&opts.Name, "name", "", "operator display name")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, a *app.App, out *OutputFormatter) error {
	if (opts.Operator == "") != (opts.Password == "") {
		return NewExitError(ExitCommandError, "--operator and --password go together")
	}
	if opts.Operator != "" {
		if err := a.Operators.SetPassword(ctx, opts.Operator, opts.Name, opts.Password); err != nil {
			return err
		}
		out.VerboseLog("operator %s saved", opts.Operator)
	} else if err := a.SeedOperator(ctx); err != nil {
		return err
	}

	result := map[string]string{"store": a.Config.StoreBackend, "location": location(a)}
	return out.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "ledger ready (%s at %s)\n", result["store"], result["location"])
	})
}

func location(a *app.App) string {
	switch a.Config.StoreBackend {
	case "csv":
		return a.Config.DataDir
	case "sqlite":
		return a.Config.SQLitePath
	case "postgres":
		return "DATABASE_URL"
	default:
		return "memory"
	}
}
