package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptfinder/internal/store"
)

// newPresetCmd creates the preset command group.
func newPresetCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage saved presets",
		Long: `Manage a user's saved presets. A preset is a named set of input values
for one workflow.

Commands:
  list      List presets for a workflow
  get       Show a preset's values
  put       Save a preset from key=value pairs
  delete    Delete a preset
  export    Write a workflow's presets as JSON
  import    Load presets from an export file`,
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "", "user id or platform account id (required)")

	cmd.AddCommand(newPresetListCmd(&user))
	cmd.AddCommand(newPresetGetCmd(&user))
	cmd.AddCommand(newPresetPutCmd(&user))
	cmd.AddCommand(newPresetDeleteCmd(&user))
	cmd.AddCommand(newPresetExportCmd(&user))
	cmd.AddCommand(newPresetImportCmd(&user))
	return cmd
}

// withUserStore loads config, opens the store for user and runs fn.
func withUserStore(cmd *cobra.Command, user string, fn func(st store.Store, uid store.UserID) error) error {
	tc, err := loadConfig()
	if err != nil {
		return err
	}
	st, uid, err := openUserStore(cmd.Context(), tc.Config, user)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st, uid)
}

func newPresetListCmd(user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow>",
		Short: "List presets for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				presets, err := st.ListPresets(cmd.Context(), uid, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(out, presets)
				}
				if len(presets) == 0 {
					_, _ = fmt.Fprintf(out, "No presets for %s\n", args[0])
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "NAME\tVALUES\tUPDATED")
				for _, p := range presets {
					_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, len(p.Values), p.UpdatedAt.Local().Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}
}

func newPresetGetCmd(user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <workflow> <name>",
		Short: "Show a preset's values",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				p, err := st.GetPreset(cmd.Context(), uid, args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), p)
				}
				printValues(cmd.OutOrStdout(), p.Values)
				return nil
			})
		},
	}
}

func newPresetPutCmd(user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "put <workflow> <name> key=value...",
		Short: "Save a preset",
		Long: `Save a preset from key=value pairs. An existing preset with the same name
is replaced. Keys are normalized the same way a workflow page does.

Example:
  pf preset put blog-post weekly -u slack:U123 topic="release notes" tone=casual`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				p, err := st.PutPreset(cmd.Context(), uid, args[0], store.Preset{Name: args[1], Values: values})
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), p)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %q (%d values)\n", p.Name, len(p.Values))
				return nil
			})
		},
	}
}

func newPresetDeleteCmd(user *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow> <name>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				if err := st.DeletePreset(cmd.Context(), uid, args[0], args[1]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted preset %q\n", args[1])
				return nil
			})
		},
	}
}

func newPresetExportCmd(user *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <workflow>",
		Short: "Write a workflow's presets as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				exp, err := st.ExportPresets(cmd.Context(), uid, args[0])
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return printJSON(cmd.OutOrStdout(), exp)
				}
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				if err := printJSON(f, exp); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d presets to %s\n", len(exp.Presets), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newPresetImportCmd(user *string) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <workflow> <file>",
		Short: "Load presets from an export file",
		Long: `Load presets from a file written by 'pf preset export'. Use - to read
from stdin. Existing presets are kept unless --overwrite is set. The import
is all-or-nothing: if any preset is invalid, nothing is written.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := readExport(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return withUserStore(cmd, *user, func(st store.Store, uid store.UserID) error {
				res, err := st.ImportPresets(cmd.Context(), uid, args[0], exp, overwrite)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(out, res)
				}
				sort.Strings(res.Imported)
				sort.Strings(res.Skipped)
				_, _ = fmt.Fprintf(out, "Imported %d presets", len(res.Imported))
				if len(res.Skipped) > 0 {
					_, _ = fmt.Fprintf(out, ", skipped %d existing (use --overwrite to replace)", len(res.Skipped))
				}
				_, _ = fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace presets that already exist")
	return cmd
}

func readExport(stdin io.Reader, path string) (*store.Export, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	var exp store.Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", path, err)
	}
	return &exp, nil
}
