package wizard

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
	"github.com/randalmurphal/promptfinder/internal/workflow"
)

// field is one variable input on a step page.
type field struct {
	key   string
	def   *variable.Definition
	input textinput.Model
}

func (f *field) label() string {
	if f.def != nil && f.def.Label != "" {
		return f.def.Label
	}
	return f.key
}

func (f *field) hint() string {
	if f.def == nil {
		return ""
	}
	var parts []string
	for _, s := range []string{f.def.Description, f.def.Hint} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(f.def.Options) > 0 {
		opts := make([]string, 0, len(f.def.Options))
		for _, o := range f.def.Options {
			opts = append(opts, o.Value)
		}
		parts = append(parts, "options: "+strings.Join(opts, ", "))
	}
	return strings.Join(parts, " · ")
}

// stepPage holds the inputs and preview of one workflow step.
type stepPage struct {
	id        string
	title     string
	fields    []*field
	focus     int
	templates []string
	preview   map[string]page.Update
}

func newStepPage(wf *workflow.Workflow, s *workflow.Step, section page.StepSection, ctrl *page.Controller) *stepPage {
	stepDefs := variable.BuildMap(s.Variables, variable.ScopeStep)
	wfDefs := variable.BuildMap(wf.Variables, variable.ScopeWorkflow)

	p := &stepPage{
		id:        s.ID,
		title:     s.Title,
		templates: ctrl.StepTemplates(s.ID),
		preview:   make(map[string]page.Update),
	}
	if p.title == "" {
		p.title = s.ID
	}

	for _, in := range section.Inputs {
		def := stepDefs.Get(in.Key)
		if def == nil {
			def = wfDefs.Get(in.Key)
		}
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 2000
		_ = ti.Cursor.SetMode(cursor.CursorStatic)
		if def != nil {
			ti.Placeholder = def.Placeholder
			if ti.Placeholder == "" {
				ti.Placeholder = def.DefaultValue
			}
		}
		p.fields = append(p.fields, &field{key: in.Key, def: def, input: ti})
	}
	return p
}

// sync copies live values into the inputs.
func (p *stepPage) sync(ctrl *page.Controller) {
	for _, f := range p.fields {
		v, _ := ctrl.Live().Get(f.key)
		if v != f.input.Value() {
			f.input.SetValue(v)
		}
	}
}

// apply records updates for this page's templates.
func (p *stepPage) apply(updates []page.Update) {
	for _, u := range updates {
		if u.StepID == p.id {
			p.preview[u.TemplateID] = u
		}
	}
}

func (p *stepPage) blur() {
	for _, f := range p.fields {
		f.input.Blur()
	}
}

func (p *stepPage) focusCmd() tea.Cmd {
	p.blur()
	if len(p.fields) == 0 {
		return nil
	}
	return p.fields[p.focus].input.Focus()
}

func (p *stepPage) move(delta int) tea.Cmd {
	if len(p.fields) == 0 {
		return nil
	}
	p.focus = (p.focus + delta + len(p.fields)) % len(p.fields)
	return p.focusCmd()
}

// update handles a message for this page. Edits are pushed to the
// controller and the returned updates refresh the preview.
func (p *stepPage) update(msg tea.Msg, ctrl *page.Controller) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			return p.move(1)
		case "shift+tab", "up":
			return p.move(-1)
		case "enter":
			if p.focus < len(p.fields)-1 {
				return p.move(1)
			}
			return CompleteStep()
		}
	}

	if len(p.fields) == 0 {
		return nil
	}
	f := p.fields[p.focus]
	before := f.input.Value()
	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	if after := f.input.Value(); after != before {
		p.apply(ctrl.SetInput(p.id, f.key, after))
	}
	return cmd
}

func (p *stepPage) view(ctrl *page.Controller, styles Styles, width int) string {
	var b strings.Builder

	labelWidth := 0
	for _, f := range p.fields {
		labelWidth = max(labelWidth, lipgloss.Width(f.label()))
	}
	for i, f := range p.fields {
		marker := "  "
		label := styles.Label.Width(labelWidth).Render(f.label())
		if i == p.focus {
			marker = styles.Focused.Render("> ")
			label = styles.Focused.Width(labelWidth).Render(f.label())
		}
		b.WriteString(marker + label + "  " + f.input.View() + "\n")
		if i == p.focus {
			if h := f.hint(); h != "" {
				b.WriteString(strings.Repeat(" ", labelWidth+4) + styles.Subtle.Render(h) + "\n")
			}
		}
	}
	if len(p.fields) == 0 {
		b.WriteString(styles.Subtle.Render("No inputs on this step.") + "\n")
	}

	previewWidth := max(width-4, 20)
	for _, id := range p.templates {
		u, ok := p.preview[id]
		if !ok {
			continue
		}
		el, _ := ctrl.Template(id)
		body := lipgloss.NewStyle().Width(previewWidth).Render(Highlight(el.Base, u, styles))
		b.WriteString("\n" + styles.Preview.Render(body) + "\n")
	}
	return b.String()
}
