package page

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/randalmurphal/promptfinder/internal/variable"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDependencyIndex makes SetInput re-render only the templates of the step
// that reference the changed key, instead of every template of the step.
func WithDependencyIndex(enabled bool) Option {
	return func(c *Controller) {
		c.depIndex = enabled
	}
}

// boundTemplate is a template element that has been attached to its step
// context. base is captured once at bind time and never changes afterwards.
type boundTemplate struct {
	id     string
	stepID string
	base   string
	value  string
	keys   []string
}

type stepState struct {
	section   StepSection
	ctx       *variable.ResolutionContext
	templates []*boundTemplate
}

// Controller owns the live store and profile layer of one page.
//
// A Controller is not safe for concurrent use: input events are processed
// one at a time, each followed by a synchronous re-render.
type Controller struct {
	logger   *slog.Logger
	depIndex bool

	resolver *variable.Resolver
	live     *variable.LiveStore

	workflowID   string
	workflowAttr string
	workflowDefs variable.DefinitionMap

	steps []*stepState
	byID  map[string]*stepState
	bound map[string]*boundTemplate
}

// New creates a controller for a page viewed with the given profile layer.
// The profile layer is fixed for the controller's lifetime.
func New(profile variable.ProfileVars, opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default(),
		live:   variable.NewLiveStore(),
		byID:   make(map[string]*stepState),
		bound:  make(map[string]*boundTemplate),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = variable.NewResolver(profile, c.live)
	return c
}

// Boot scans the document, binds every template, seeds the live store from
// pre-filled inputs and renders the whole page once.
func (c *Controller) Boot(doc Document) []Update {
	c.workflowID = doc.WorkflowID
	c.workflowAttr = doc.WorkflowVariables
	for _, section := range doc.Steps {
		c.addSection(section)
	}
	return c.Rescan()
}

// SetInput records a value typed into an input of step stepID and re-renders
// that step. Inputs outside any known step still update the live store, which
// is shared by the whole page, but trigger no re-render.
func (c *Controller) SetInput(stepID, key, value string) []Update {
	k := c.live.Set(key, value)
	if k == "" {
		return nil
	}

	st, ok := c.byID[stepID]
	if !ok {
		c.logger.Debug("input outside any step", "step", stepID, "key", k)
		return nil
	}

	updates := make([]Update, 0, len(st.templates))
	for _, bt := range st.templates {
		if c.depIndex && !slices.Contains(bt.keys, k) {
			continue
		}
		updates = append(updates, c.render(st, bt))
	}
	return updates
}

// Rescan re-parses every definition and re-renders every bound template.
// Templates keep the base text captured when they were first bound.
func (c *Controller) Rescan() []Update {
	c.workflowDefs = c.parseDefs(c.workflowAttr, variable.ScopeWorkflow, "")

	var updates []Update
	for _, st := range c.steps {
		st.ctx = &variable.ResolutionContext{
			StepDefs:     c.parseDefs(st.section.Variables, variable.ScopeStep, st.section.ID),
			WorkflowDefs: c.workflowDefs,
			AllowProfile: ParseFlag(st.section.AllowProfile),
		}
		for _, bt := range st.templates {
			updates = append(updates, c.render(st, bt))
		}
	}
	return updates
}

// AddStep injects a step section after boot and rescans the page. A section
// whose ID is already known replaces the existing one.
func (c *Controller) AddStep(section StepSection) []Update {
	c.addSection(section)
	return c.Rescan()
}

// Template returns the current state of a bound template element.
func (c *Controller) Template(id string) (TemplateElement, bool) {
	bt, ok := c.bound[id]
	if !ok {
		return TemplateElement{}, false
	}
	return TemplateElement{ID: bt.id, Base: bt.base, Value: bt.value}, true
}

// Live returns the page's live store.
func (c *Controller) Live() *variable.LiveStore {
	return c.live
}

// Profile returns the page's profile layer.
func (c *Controller) Profile() variable.ProfileVars {
	return c.resolver.Profile()
}

// WorkflowID returns the ID of the booted document.
func (c *Controller) WorkflowID() string {
	return c.workflowID
}

// Steps returns the step IDs in page order.
func (c *Controller) Steps() []string {
	ids := make([]string, len(c.steps))
	for i, st := range c.steps {
		ids[i] = st.section.ID
	}
	return ids
}

// StepTemplates returns the template IDs of a step in page order.
func (c *Controller) StepTemplates(stepID string) []string {
	st, ok := c.byID[stepID]
	if !ok {
		return nil
	}
	ids := make([]string, len(st.templates))
	for i, bt := range st.templates {
		ids[i] = bt.id
	}
	return ids
}

func (c *Controller) addSection(section StepSection) {
	st := &stepState{section: section}

	for i, el := range section.Templates {
		id := el.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", section.ID, i)
		}
		base := el.Base
		if base == "" {
			base = el.Value
		}
		if base == "" {
			c.logger.Warn("template has no base text, skipping", "step", section.ID, "template", id)
			continue
		}
		bt := &boundTemplate{
			id:     id,
			stepID: section.ID,
			base:   base,
			value:  el.Value,
			keys:   variable.Keys(base),
		}
		st.templates = append(st.templates, bt)
		c.bound[id] = bt
	}

	for _, in := range section.Inputs {
		if in.Value != "" {
			c.live.Set(in.Key, in.Value)
		}
	}

	if old, ok := c.byID[section.ID]; ok {
		for _, bt := range old.templates {
			if c.bound[bt.id] == bt {
				delete(c.bound, bt.id)
			}
		}
		idx := slices.Index(c.steps, old)
		c.steps[idx] = st
	} else {
		c.steps = append(c.steps, st)
	}
	c.byID[section.ID] = st
}

func (c *Controller) parseDefs(attr string, scope variable.Scope, stepID string) variable.DefinitionMap {
	defs := variable.BuildMapJSON(attr, scope)
	if len(defs) == 0 && attr != "" {
		c.logger.Debug("no variable definitions parsed", "scope", scope, "step", stepID)
	}
	return defs
}

func (c *Controller) render(st *stepState, bt *boundTemplate) Update {
	out := c.resolver.RenderTracked(bt.base, st.ctx)
	bt.value = out.Text
	return Update{
		StepID:     st.section.ID,
		TemplateID: bt.id,
		Text:       out.Text,
		Tokens:     out.Tokens,
	}
}
