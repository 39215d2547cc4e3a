package workflow

import (
	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
)

// RenderedPrompt is one prompt of a rendered step.
type RenderedPrompt struct {
	ID     string                `json:"id"`
	Text   string                `json:"text"`
	Tokens []variable.TokenTrace `json:"tokens,omitempty"`
}

// RenderedStep is a step with its rendered prompts.
type RenderedStep struct {
	ID      string           `json:"id"`
	Title   string           `json:"title,omitempty"`
	Prompts []RenderedPrompt `json:"prompts"`
}

// Result is a whole workflow rendered once.
type Result struct {
	WorkflowID string            `json:"workflow_id"`
	Steps      []RenderedStep    `json:"steps"`
	Values     map[string]string `json:"values"`
}

// Step returns the rendered step with the given ID.
func (r *Result) Step(id string) (*RenderedStep, bool) {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

// Render boots a page controller for w with the given profile layer, applies
// values as if typed by the user, and returns every prompt rendered.
func Render(w *Workflow, profile variable.ProfileVars, values map[string]string, opts ...page.Option) *Result {
	c := page.New(profile, opts...)
	c.Boot(w.Document())
	c.Live().Merge(values)
	return Collect(w, c, c.Rescan())
}

// Collect groups controller updates by step in workflow order.
func Collect(w *Workflow, c *page.Controller, updates []page.Update) *Result {
	byTemplate := make(map[string]page.Update, len(updates))
	for _, u := range updates {
		byTemplate[u.TemplateID] = u
	}

	res := &Result{
		WorkflowID: w.ID,
		Steps:      make([]RenderedStep, 0, len(w.Steps)),
		Values:     c.Live().Snapshot(),
	}
	for _, s := range w.Steps {
		rs := RenderedStep{ID: s.ID, Title: s.Title, Prompts: []RenderedPrompt{}}
		for _, id := range c.StepTemplates(s.ID) {
			u, ok := byTemplate[id]
			if !ok {
				el, _ := c.Template(id)
				u = page.Update{TemplateID: id, Text: el.Value}
			}
			rs.Prompts = append(rs.Prompts, RenderedPrompt{ID: id, Text: u.Text, Tokens: u.Tokens})
		}
		res.Steps = append(res.Steps, rs)
	}
	return res
}
