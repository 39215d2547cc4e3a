package cli

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/wizard"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// newRenderCmd creates the render command.
func newRenderCmd() *cobra.Command {
	var (
		sf       sessionFlags
		sets     []string
		stepID   string
		trace    bool
		depIndex bool
	)

	cmd := &cobra.Command{
		Use:   "render <workflow>",
		Short: "Render every prompt of a workflow once",
		Long: `Render every prompt of a workflow with the given inputs.

<workflow> is a workflow ID from the catalog or a path to a workflow file.
Values are layered like on a workflow page: --set values act as typed input
and beat preset values, which beat profile values and defaults.

Examples:
  pf render blog-post --set topic="Go generics"
  pf render ./my-flow.yaml --step outline --trace
  pf render blog-post --user slack:U123 --preset weekly --logged-in`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := loadConfig()
			if err != nil {
				return err
			}
			cfg := tc.Config

			catalog, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			wf, err := catalog.Resolve(args[0])
			if err != nil {
				return err
			}
			if stepID != "" {
				if _, ok := wf.Step(stepID); !ok {
					return fmt.Errorf("workflow %s has no step %q", wf.ID, stepID)
				}
			}

			typed, err := parseAssignments(sets)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := sf.prepare(ctx, cfg, wf)
			if err != nil {
				return err
			}
			defer sess.close()

			values := make(map[string]string, len(sess.preset)+len(typed))
			maps.Copy(values, sess.preset)
			maps.Copy(values, typed)

			res := workflow.Render(wf, sess.profile, values,
				page.WithLogger(slog.Default()),
				page.WithDependencyIndex(depIndex))
			if stepID != "" {
				step, _ := res.Step(stepID)
				res.Steps = []workflow.RenderedStep{*step}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, res)
			}
			printResult(out, wf, res, trace, isTerminal(out), terminalWidth(out))
			return nil
		},
	}

	sf.register(cmd)
	cmd.Flags().StringArrayVar(&sets, "set", nil, "input value key=value (repeatable)")
	cmd.Flags().StringVar(&stepID, "step", "", "render only this step")
	cmd.Flags().BoolVar(&trace, "trace", false, "show which source resolved each token")
	cmd.Flags().BoolVar(&depIndex, "dependency-index", false, "re-render only templates that reference a changed key")
	return cmd
}

// printResult writes rendered steps. Pretty output colours tokens by the
// tier that resolved them and wraps to the terminal width.
func printResult(out io.Writer, wf *workflow.Workflow, res *workflow.Result, trace, pretty bool, width int) {
	styles := wizard.DefaultStyles()
	heading := lipgloss.NewStyle().Bold(true)
	wrap := lipgloss.NewStyle().Width(max(width, 20))

	for i, rs := range res.Steps {
		if i > 0 {
			_, _ = fmt.Fprintln(out)
		}
		title := rs.ID
		if rs.Title != "" {
			title = fmt.Sprintf("%s (%s)", rs.Title, rs.ID)
		}
		if pretty {
			title = heading.Render(title)
		}
		_, _ = fmt.Fprintf(out, "## %s\n", title)

		for j, p := range rs.Prompts {
			text := p.Text
			if pretty {
				text = wrap.Render(wizard.Highlight(promptBase(wf, rs.ID, j), page.Update{Text: p.Text, Tokens: p.Tokens}, styles))
			}
			_, _ = fmt.Fprintf(out, "\n%s\n", text)
			if trace && len(p.Tokens) > 0 {
				printTrace(out, p.Tokens)
			}
		}
	}
}

func printTrace(out io.Writer, tokens []variable.TokenTrace) {
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  TOKEN\tSOURCE\tVALUE")
	for _, t := range tokens {
		source := string(t.Tier)
		switch {
		case !t.Resolved && t.HasFallback:
			source = "fallback"
		case !t.Resolved:
			source = "unresolved (" + string(t.InjectionMode) + ")"
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%q\n", t.Token, source, t.Value)
	}
	_ = w.Flush()
}

func promptBase(wf *workflow.Workflow, stepID string, i int) string {
	s, ok := wf.Step(stepID)
	if !ok || i >= len(s.Prompts) {
		return ""
	}
	return s.Prompts[i].Template
}
