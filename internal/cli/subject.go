package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hourlog/internal/app"
	"hourlog/internal/attendance"
	"hourlog/internal/model"
)

// NewSubjectCommand groups the roster commands.
func NewSubjectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Manage the subjects accruing hours",
	}
	cmd.AddCommand(newSubjectAddCommand(rootOpts))
	cmd.AddCommand(newSubjectEditCommand(rootOpts))
	cmd.AddCommand(newSubjectListCommand(rootOpts))
	cmd.AddCommand(newSubjectActiveCommand(rootOpts, true))
	cmd.AddCommand(newSubjectActiveCommand(rootOpts, false))
	return cmd
}

func bindSubjectFlags(cmd *cobra.Command, in *attendance.SubjectInput) {
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Program, "program", "", "program or degree")
	cmd.Flags().StringVar(&in.Term, "term", "", "term or semester")
	cmd.Flags().StringVar(&in.AccountNumber, "account", "", "account number, unique per subject")
	cmd.Flags().StringVar(&in.Occupation, "occupation", "", "occupation")
	cmd.Flags().StringVar(&in.Contact, "contact", "", "contact address or phone")
}

func printSubject(w io.Writer, s model.Subject) {
	state := "active"
	if !s.Active {
		state = "inactive"
	}
	fmt.Fprintf(w, "%s  %s  %s/%s  account %s  (%s)\n", s.ID, s.Name, s.Program, s.Term, s.AccountNumber, state)
}

func newSubjectAddCommand(rootOpts *RootOptions) *cobra.Command {
	var in attendance.SubjectInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new active subject",
		Example: `  hoursctl subject add --name "Ana Lopez" --program Biologia --term 3 \
    --account 1001 --occupation Estudiante --contact ana@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				subj, err := a.Service.RegisterSubject(ctx, in)
				if err != nil {
					return err
				}
				return out.Success(subj, func(w io.Writer) { printSubject(w, subj) })
			})
		},
	}
	bindSubjectFlags(cmd, &in)
	return cmd
}

func newSubjectEditCommand(rootOpts *RootOptions) *cobra.Command {
	var in attendance.SubjectInput
	var active bool
	cmd := &cobra.Command{
		Use:   "edit <subject-id>",
		Short: "Change a subject; omitted flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				current, err := a.Service.GetSubject(ctx, args[0])
				if err != nil {
					return err
				}
				merged := mergeSubject(cmd, current, in)
				var activePtr *bool
				if cmd.Flags().Changed("active") {
					activePtr = &active
				}
				subj, err := a.Service.EditSubject(ctx, current.ID, merged, activePtr)
				if err != nil {
					return err
				}
				return out.Success(subj, func(w io.Writer) { printSubject(w, subj) })
			})
		},
	}
	bindSubjectFlags(cmd, &in)
	cmd.Flags().BoolVar(&active, "active", true, "set the active flag")
	return cmd
}

// mergeSubject starts from the stored subject and applies the flags the
// operator actually passed.
func mergeSubject(cmd *cobra.Command, s model.Subject, in attendance.SubjectInput) attendance.SubjectInput {
	out := attendance.SubjectInput{
		Name:          s.Name,
		Program:       s.Program,
		Term:          s.Term,
		AccountNumber: s.AccountNumber,
		Occupation:    s.Occupation,
		Contact:       s.Contact,
	}
	set := func(flag string, dst *string, v string) {
		if cmd.Flags().Changed(flag) {
			*dst = v
		}
	}
	set("name", &out.Name, in.Name)
	set("program", &out.Program, in.Program)
	set("term", &out.Term, in.Term)
	set("account", &out.AccountNumber, in.AccountNumber)
	set("occupation", &out.Occupation, in.Occupation)
	set("contact", &out.Contact, in.Contact)
	return out
}

func newSubjectListCommand(rootOpts *RootOptions) *cobra.Command {
	var onlyActive, onlyInactive bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subjects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if onlyActive && onlyInactive {
				return NewExitError(ExitCommandError, "--active and --inactive are exclusive")
			}
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				all, err := a.Service.ListSubjects(ctx)
				if err != nil {
					return err
				}
				subjects := make([]model.Subject, 0, len(all))
				for _, s := range all {
					if (onlyActive && !s.Active) || (onlyInactive && s.Active) {
						continue
					}
					subjects = append(subjects, s)
				}
				return out.Success(subjects, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "ID\tNAME\tPROGRAM\tTERM\tACCOUNT\tACTIVE")
					for _, s := range subjects {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", s.ID, s.Name, s.Program, s.Term, s.AccountNumber, s.Active)
					}
					tw.Flush()
				})
			})
		},
	}
	cmd.Flags().BoolVar(&onlyActive, "active", false, "only active subjects")
	cmd.Flags().BoolVar(&onlyInactive, "inactive", false, "only inactive subjects")
	return cmd
}

func newSubjectActiveCommand(rootOpts *RootOptions, active bool) *cobra.Command {
	use, short := "deactivate", "Deactivate a subject; its records are kept"
	if active {
		use, short = "activate", "Reactivate a subject"
	}
	return &cobra.Command{
		Use:   use + " <subject-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withLedger(cmd, func(ctx context.Context, a *app.App, out *OutputFormatter) error {
				subj, err := a.Service.SetActive(ctx, args[0], active)
				if err != nil {
					return err
				}
				return out.Success(subj, func(w io.Writer) { printSubject(w, subj) })
			})
		},
	}
}
