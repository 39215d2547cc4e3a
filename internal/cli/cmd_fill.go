package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/store"
	"github.com/randalmurphal/promptfinder/internal/wizard"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// newFillCmd creates the interactive fill command.
func newFillCmd() *cobra.Command {
	var (
		sf   sessionFlags
		save string
	)

	cmd := &cobra.Command{
		Use:   "fill <workflow>",
		Short: "Fill a workflow interactively with a live preview",
		Long: `Walk through a workflow step by step. Each step shows its inputs and a
preview of its prompts that updates as you type. Tokens are coloured by the
source that resolved them.

Values typed on one step are shared with every other step, the same way a
workflow page shares one live store.

Examples:
  pf fill blog-post
  pf fill blog-post --user slack:U123 --preset weekly --save weekly`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return errors.New("pf fill needs an interactive terminal; use pf render instead")
			}
			if save != "" && sf.user == "" {
				return errors.New("--save requires --user")
			}

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

			ctx := cmd.Context()
			sess, err := sf.prepare(ctx, cfg, wf)
			if err != nil {
				return err
			}
			defer sess.close()

			if sess.store != nil && len(wf.Steps) > 0 {
				if err := sess.store.RecordVisit(ctx, sess.uid, wf.ID, wf.Steps[0].ID); err != nil {
					slog.Warn("failed to record visit", "workflow", wf.ID, "error", err)
				}
			}

			ctrl := page.New(sess.profile, page.WithLogger(slog.Default()))
			ctrl.Boot(wf.Document())
			ctrl.Live().Merge(sess.preset)

			values, err := wizard.New(wf, ctrl,
				wizard.WithWidth(terminalWidth(os.Stdout)),
				wizard.WithLogger(slog.Default()),
			).Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			res := workflow.Collect(wf, ctrl, ctrl.Rescan())
			printResult(out, wf, res, false, true, terminalWidth(os.Stdout))

			if save != "" {
				p, err := sess.store.PutPreset(ctx, sess.uid, wf.ID, store.Preset{Name: save, Values: values})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "\nSaved preset %q (%d values)\n", p.Name, len(p.Values))
			}
			return nil
		},
	}

	sf.register(cmd)
	cmd.Flags().StringVar(&save, "save", "", "save the final values as a preset with this name")
	return cmd
}
