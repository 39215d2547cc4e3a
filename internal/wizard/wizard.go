// Package wizard provides the Bubbletea-based interactive fill session: one
// page per workflow step, a text input per variable and a live preview of
// the step's prompts that re-renders on every keystroke.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// ErrCancelled is returned when the user leaves the session before the last
// step.
var ErrCancelled = errors.New("fill cancelled")

// Styles contains the visual styling for the wizard.
type Styles struct {
	Title       lipgloss.Style
	Description lipgloss.Style
	Progress    lipgloss.Style
	Label       lipgloss.Style
	Focused     lipgloss.Style
	Subtle      lipgloss.Style
	Preview     lipgloss.Style

	// Token colouring by the tier that resolved it.
	StepValue     lipgloss.Style
	WorkflowValue lipgloss.Style
	ProfileValue  lipgloss.Style
	Unresolved    lipgloss.Style
}

// DefaultStyles returns the default wizard styling.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1),
		Description: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1),
		Progress: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Focused: lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")),
		Subtle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Preview: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1),
		StepValue:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		WorkflowValue: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		ProfileValue:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Unresolved:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Italic(true),
	}
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithStyles sets custom styling.
func WithStyles(styles Styles) Option {
	return func(w *Wizard) { w.styles = styles }
}

// WithWidth sets the initial preview width. Window resizes override it.
func WithWidth(width int) Option {
	return func(w *Wizard) { w.width = width }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) { w.logger = logger }
}

// WithIO replaces the terminal with in and out.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(w *Wizard) {
		w.programOpts = append(w.programOpts, tea.WithInput(in), tea.WithOutput(out))
	}
}

// Wizard walks the steps of one workflow page.
type Wizard struct {
	wf      *workflow.Workflow
	ctrl    *page.Controller
	pages   []*stepPage
	current int

	width       int
	styles      Styles
	logger      *slog.Logger
	programOpts []tea.ProgramOption

	done bool
	err  error
}

// New creates a wizard over ctrl, which must already be booted with wf's
// document. Values already in the live store pre-fill the inputs.
func New(wf *workflow.Workflow, ctrl *page.Controller, opts ...Option) *Wizard {
	w := &Wizard{
		wf:     wf,
		ctrl:   ctrl,
		styles: DefaultStyles(),
		width:  80,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	doc := wf.Document()
	for i := range wf.Steps {
		w.pages = append(w.pages, newStepPage(wf, &wf.Steps[i], doc.Steps[i], ctrl))
	}
	w.enter(0)
	return w
}

// Run executes the session and returns the final live values.
func (w *Wizard) Run(ctx context.Context) (map[string]string, error) {
	if len(w.pages) == 0 {
		return w.Values(), nil
	}

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, w.programOpts...)
	if _, err := tea.NewProgram(w, opts...).Run(); err != nil {
		return nil, fmt.Errorf("fill session: %w", err)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.Values(), nil
}

// Values returns a snapshot of the live store.
func (w *Wizard) Values() map[string]string {
	return w.ctrl.Live().Snapshot()
}

// Done reports whether the user finished the last step.
func (w *Wizard) Done() bool {
	return w.done
}

// Err returns why the session ended early, if it did.
func (w *Wizard) Err() error {
	return w.err
}

// Init implements tea.Model.
func (w *Wizard) Init() tea.Cmd {
	if p := w.page(); p != nil {
		return p.focusCmd()
	}
	return nil
}

// Update implements tea.Model.
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		return w, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			w.err = ErrCancelled
			return w, tea.Quit
		case "ctrl+b":
			if w.current > 0 {
				return w, w.enter(w.current - 1)
			}
			return w, nil
		}

	case StepCompleteMsg:
		if w.current+1 >= len(w.pages) {
			w.done = true
			return w, tea.Quit
		}
		return w, w.enter(w.current + 1)
	}

	if p := w.page(); p != nil {
		return w, p.update(msg, w.ctrl)
	}
	return w, nil
}

// View implements tea.Model.
func (w *Wizard) View() string {
	p := w.page()
	if p == nil || w.done {
		return ""
	}

	var b strings.Builder
	progress := fmt.Sprintf("Step %d of %d", w.current+1, len(w.pages))
	if w.wf.Title != "" {
		progress += " · " + w.wf.Title
	}
	b.WriteString(w.styles.Progress.Render(progress) + "\n\n")
	b.WriteString(w.styles.Title.Render(p.title) + "\n")
	b.WriteString(p.view(w.ctrl, w.styles, w.width))
	b.WriteString("\n" + w.styles.Subtle.Render("tab/↑/↓: field • enter: next • ctrl+b: back • esc: quit"))
	return b.String()
}

// enter switches to page i, pulling values typed on other pages and
// re-rendering everything so the preview reflects the shared live store.
func (w *Wizard) enter(i int) tea.Cmd {
	if i < 0 || i >= len(w.pages) {
		return nil
	}
	if cur := w.page(); cur != nil {
		cur.blur()
	}
	w.current = i
	p := w.pages[i]
	p.focus = 0
	p.sync(w.ctrl)
	updates := w.ctrl.Rescan()
	for _, pg := range w.pages {
		pg.apply(updates)
	}
	w.logger.Debug("fill step", "workflow", w.wf.ID, "step", p.id)
	return p.focusCmd()
}

func (w *Wizard) page() *stepPage {
	if w.current < len(w.pages) {
		return w.pages[w.current]
	}
	return nil
}

// StepCompleteMsg signals that the current step is complete.
type StepCompleteMsg struct{}

// CompleteStep returns a command that signals step completion.
func CompleteStep() tea.Cmd {
	return func() tea.Msg {
		return StepCompleteMsg{}
	}
}

// Highlight renders a template's current text with each token coloured by
// the tier that resolved it.
func Highlight(base string, u page.Update, styles Styles) string {
	var b strings.Builder
	for _, seg := range variable.Segments(base, variable.Rendered{Text: u.Text, Tokens: u.Tokens}) {
		if seg.Token == nil {
			b.WriteString(seg.Text)
			continue
		}
		b.WriteString(tierStyle(seg.Token, styles).Render(seg.Text))
	}
	return b.String()
}

func tierStyle(tok *variable.TokenTrace, styles Styles) lipgloss.Style {
	if !tok.Resolved {
		return styles.Unresolved
	}
	switch tok.Tier {
	case variable.TierStep:
		return styles.StepValue
	case variable.TierWorkflow:
		return styles.WorkflowValue
	case variable.TierProfile:
		return styles.ProfileValue
	default:
		return lipgloss.NewStyle()
	}
}
