package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newWorkflowsCmd creates the workflows command.
func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "workflows",
		Aliases: []string{"ls"},
		Short:   "List available workflows",
		Long: `List the built-in workflows and those found in workflows.dir.
A directory workflow replaces a built-in one with the same ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := openCatalog(tc.Config)
			if err != nil {
				return err
			}

			list := catalog.List()
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, list)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTITLE\tSTEPS\tPROFILE\tSOURCE")
			for _, s := range list {
				profile := "-"
				if s.UseProfileDefaults {
					profile = "yes"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.Title, s.Steps, profile, s.Source)
			}
			return w.Flush()
		},
	}
}
