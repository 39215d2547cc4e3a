// Package workflow provides workflow documents: the content a page is
// rendered from (steps, prompt templates and variable definition rows).
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
)

// ErrNotFound is returned when a workflow is not in the catalog.
var ErrNotFound = errors.New("workflow not found")

// Prompt is one prompt template of a step.
type Prompt struct {
	ID       string `yaml:"id,omitempty" json:"id,omitempty"`
	Template string `yaml:"template" json:"template"`
}

// Step is one step of a workflow.
type Step struct {
	ID           string   `yaml:"id" json:"id"`
	Title        string   `yaml:"title,omitempty" json:"title,omitempty"`
	AllowProfile bool     `yaml:"allow_profile,omitempty" json:"allow_profile,omitempty"`
	Variables    Rows     `yaml:"variables,omitempty" json:"variables,omitempty"`
	Prompts      []Prompt `yaml:"prompts" json:"prompts"`
}

// Workflow is a workflow document.
type Workflow struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// UseProfileDefaults lets logged-in users get their saved profile
	// values on this workflow's pages.
	UseProfileDefaults bool `yaml:"use_profile_defaults,omitempty" json:"use_profile_defaults,omitempty"`

	Variables Rows   `yaml:"variables,omitempty" json:"variables,omitempty"`
	Steps     []Step `yaml:"steps" json:"steps"`

	Source Source `yaml:"-" json:"source,omitempty"`
	Path   string `yaml:"-" json:"-"`
}

// Load reads a workflow from a YAML or JSON file. A document without an ID
// takes the file name (without extension).
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	wf, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if wf.ID == "" {
		wf.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	wf.Path = path
	wf.Source = SourceDirectory
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	return wf, nil
}

// Parse decodes a workflow document. ext selects the format: ".json" is
// decoded as JSON, anything else as YAML.
func Parse(data []byte, ext string) (*Workflow, error) {
	var wf Workflow
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &wf); err != nil {
			return nil, err
		}
		return &wf, nil
	}
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks structural rules: a non-empty ID, and unique step and
// prompt IDs.
func (w *Workflow) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("workflow id is required")
	}
	steps := make(map[string]bool, len(w.Steps))
	prompts := make(map[string]bool)
	for i, s := range w.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if steps[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		steps[s.ID] = true
		for j := range s.Prompts {
			id := promptID(s, j)
			if prompts[id] {
				return fmt.Errorf("step %q: duplicate prompt id %q", s.ID, id)
			}
			prompts[id] = true
		}
	}
	return nil
}

// Step returns the step with the given ID.
func (w *Workflow) Step(id string) (*Step, bool) {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i], true
		}
	}
	return nil, false
}

// Document renders the workflow as page data, the way a server-side
// renderer embeds it: rows become JSON attributes and allow-profile
// becomes "1" or "0".
func (w *Workflow) Document() page.Document {
	doc := page.Document{
		WorkflowID:        w.ID,
		WorkflowVariables: w.Variables.Attr(),
		Steps:             make([]page.StepSection, 0, len(w.Steps)),
	}
	for _, s := range w.Steps {
		section := page.StepSection{
			ID:           s.ID,
			Variables:    s.Variables.Attr(),
			AllowProfile: "0",
		}
		if s.AllowProfile {
			section.AllowProfile = "1"
		}
		for j, p := range s.Prompts {
			section.Templates = append(section.Templates, page.TemplateElement{
				ID:   promptID(s, j),
				Base: p.Template,
			})
		}
		for _, key := range w.stepInputKeys(s) {
			section.Inputs = append(section.Inputs, page.Input{Key: key})
		}
		doc.Steps = append(doc.Steps, section)
	}
	return doc
}

// StepDefinitions returns a step's definitions in row order.
func (s *Step) StepDefinitions() []*variable.Definition {
	return variable.BuildList(s.Variables, variable.ScopeStep)
}

// Definitions returns the workflow-level definitions in row order.
func (w *Workflow) Definitions() []*variable.Definition {
	return variable.BuildList(w.Variables, variable.ScopeWorkflow)
}

// InputKeys returns every key a user can type on the page, in page order:
// step definitions, then workflow definitions, then keys that only appear in
// templates. System keys are included only when a row defines them.
func (w *Workflow) InputKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for i := range w.Steps {
		for _, d := range w.Steps[i].StepDefinitions() {
			add(d.Key)
		}
	}
	for _, d := range w.Definitions() {
		add(d.Key)
	}
	for _, s := range w.Steps {
		for _, p := range s.Prompts {
			for _, k := range variable.Keys(p.Template) {
				if !strings.HasPrefix(k, variable.SystemPrefix) {
					add(k)
				}
			}
		}
	}
	return keys
}

// stepInputKeys returns the keys typed on one step: its own definitions,
// then every non-system key its templates reference.
func (w *Workflow) stepInputKeys(s Step) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, d := range s.StepDefinitions() {
		if !seen[d.Key] {
			seen[d.Key] = true
			keys = append(keys, d.Key)
		}
	}
	for _, p := range s.Prompts {
		for _, k := range variable.Keys(p.Template) {
			if seen[k] || strings.HasPrefix(k, variable.SystemPrefix) {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func promptID(s Step, i int) string {
	if s.Prompts[i].ID != "" {
		return s.Prompts[i].ID
	}
	return fmt.Sprintf("%s-%d", s.ID, i+1)
}
