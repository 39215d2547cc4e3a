package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptfinder/internal/store"
)

// newProfileCmd creates the profile command group.
func newProfileCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved profile values",
		Long: `Manage a user's saved profile values. Profile values fill variables that
declare a profile_key on workflow pages that allow profile defaults.

Keys starting with sys_ are reserved for system values and cannot be saved.`,
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "", "user id or platform account id (required)")

	cmd.AddCommand(newProfileGetCmd(&user))
	cmd.AddCommand(newProfileSetCmd(&user))
	cmd.AddCommand(newProfileHistoryCmd(&user))
	return cmd
}

func newProfileGetCmd(user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show saved profile values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				vars, err := st.GetProfileVars(cmd.Context(), uid)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), vars)
				}
				if len(vars) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No profile values saved")
					return nil
				}
				printValues(cmd.OutOrStdout(), vars)
				return nil
			})
		},
	}
}

func newProfileSetCmd(user *string) *cobra.Command {
	var replace bool

	cmd := &cobra.Command{
		Use:   "set key=value...",
		Short: "Save profile values",
		Long: `Save profile values. By default the pairs are merged into the existing
values and an empty value removes its key. With --replace the saved values
become exactly the given pairs.

Example:
  pf profile set -u slack:U123 team_name=Platform role=`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				saved, err := st.SetProfileVars(cmd.Context(), uid, vars, replace)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), saved)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d profile values\n", len(saved))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace all saved values instead of merging")
	return cmd
}

func newProfileHistoryCmd(user *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently visited workflow steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				visits, err := st.ListVisits(cmd.Context(), uid, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(out, visits)
				}
				if len(visits) == 0 {
					_, _ = fmt.Fprintln(out, "No visits recorded")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "WORKFLOW\tSTEP\tVISITED")
				for _, v := range visits {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", v.WorkflowID, v.StepID, v.VisitedAt.Local().Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum visits to show")
	return cmd
}
