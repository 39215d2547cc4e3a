package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptfinder/internal/page"
	"github.com/randalmurphal/promptfinder/internal/variable"
)

const sampleYAML = `
id: onboarding
title: Onboarding email
use_profile_defaults: true
variables:
  - key: company
    profile_key: company_name
    injection_mode: direct
steps:
  - id: intro
    allow_profile: true
    variables:
      - key: name
        example_value: Sam
      - key: tone
        options:
          warm: Warm
          brisk: Brisk
    prompts:
      - template: "Hi {name}, welcome to {company}. Tone: {tone}. {extra|}"
  - id: follow-up
    prompts:
      - id: fu
        template: "Checking in on {sys_today} about {topic}"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestParseYAMLPreservesRowOrder(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	require.Len(t, wf.Steps, 2)
	require.Len(t, wf.Steps[0].Variables, 2)

	defs := variable.BuildMap(wf.Steps[0].Variables, variable.ScopeStep)
	tone := defs.Get("tone")
	require.NotNil(t, tone)
	assert.Equal(t, []variable.Option{{Value: "warm", Label: "Warm"}, {Value: "brisk", Label: "Brisk"}}, tone.Options)
	assert.Equal(t, "Sam", defs.Get("name").DefaultValue)

	wfDefs := variable.BuildMap(wf.Variables, variable.ScopeWorkflow)
	assert.Equal(t, variable.InjectionDirect, wfDefs.Get("company").InjectionMode)
	assert.Equal(t, "company_name", wfDefs.Get("company").ProfileKey)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(`{
		"id": "j",
		"variables": [{"key": "a", "prefer_system": "1"}],
		"steps": [{"id": "s", "prompts": [{"template": "{a}"}]}]
	}`), ".JSON")
	require.NoError(t, err)
	assert.Equal(t, "j", wf.ID)
	assert.JSONEq(t, `{"key": "a", "prefer_system": "1"}`, string(wf.Variables[0]))
}

func TestLoadDefaultsIDFromFileName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "quick-note.yml", "steps:\n  - id: s\n    prompts:\n      - template: hi\n")

	wf, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "quick-note", wf.ID)
	assert.Equal(t, SourceDirectory, wf.Source)
	assert.Equal(t, p, wf.Path)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wf      Workflow
		wantErr bool
	}{
		{name: "valid", wf: Workflow{ID: "a", Steps: []Step{{ID: "s", Prompts: []Prompt{{Template: "x"}, {Template: "y"}}}}}},
		{name: "missing id", wf: Workflow{ID: " "}, wantErr: true},
		{name: "missing step id", wf: Workflow{ID: "a", Steps: []Step{{}}}, wantErr: true},
		{name: "duplicate step", wf: Workflow{ID: "a", Steps: []Step{{ID: "s"}, {ID: "s"}}}, wantErr: true},
		{
			name: "duplicate prompt across steps",
			wf: Workflow{ID: "a", Steps: []Step{
				{ID: "s1", Prompts: []Prompt{{ID: "p", Template: "x"}}},
				{ID: "s2", Prompts: []Prompt{{ID: "p", Template: "y"}}},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wf.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	doc := wf.Document()
	assert.Equal(t, "onboarding", doc.WorkflowID)
	require.Len(t, doc.Steps, 2)

	intro := doc.Steps[0]
	assert.Equal(t, "1", intro.AllowProfile)
	assert.Equal(t, "intro-1", intro.Templates[0].ID)
	assert.Equal(t, []page.Input{{Key: "name"}, {Key: "tone"}, {Key: "company"}, {Key: "extra"}}, intro.Inputs)
	assert.Len(t, variable.BuildMapJSON(intro.Variables, variable.ScopeStep), 2)
	assert.Len(t, variable.BuildMapJSON(doc.WorkflowVariables, variable.ScopeWorkflow), 1)

	followUp := doc.Steps[1]
	assert.Equal(t, "0", followUp.AllowProfile)
	assert.Equal(t, "fu", followUp.Templates[0].ID)
	assert.Empty(t, followUp.Variables)
	assert.Equal(t, []page.Input{{Key: "topic"}}, followUp.Inputs)
}

func TestDocumentRendersThroughController(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	c := page.New(variable.ProfileVars{"company_name": "Acme", "sys_today": "2025-01-01"})
	c.Boot(wf.Document())

	el, ok := c.Template("intro-1")
	require.True(t, ok)
	assert.Equal(t, "Hi Sam, welcome to Acme. Tone: {tone}. ", el.Value)

	el, _ = c.Template("fu")
	assert.Equal(t, "Checking in on {sys_today} about {topic}", el.Value, "follow-up step has no profile access")
}

func TestInputKeys(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "tone", "company", "extra", "topic"}, wf.InputKeys())
}

func TestStepLookup(t *testing.T) {
	t.Parallel()

	wf, err := Parse([]byte(sampleYAML), ".yaml")
	require.NoError(t, err)

	s, ok := wf.Step("follow-up")
	require.True(t, ok)
	assert.Equal(t, "fu", s.Prompts[0].ID)

	_, ok = wf.Step("missing")
	assert.False(t, ok)
}

func TestRowsUnmarshalRejectsMapping(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("id: x\nvariables:\n  key: a\n"), ".yaml")
	require.Error(t, err)
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "nested/custom.yaml", "id: custom\nsteps:\n  - id: s\n    prompts:\n      - template: hi\n")
	writeFile(t, dir, "blog-post.json", `{"id":"blog-post","title":"Overridden","steps":[]}`)
	writeFile(t, dir, "broken.yaml", "id: [unterminated\n")
	writeFile(t, dir, "README.md", "not a workflow")

	c, err := OpenCatalog(dir, "")
	require.NoError(t, err)

	custom, err := c.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, SourceDirectory, custom.Source)

	blog, err := c.Get("blog-post")
	require.NoError(t, err)
	assert.Equal(t, "Overridden", blog.Title, "directory workflow beats embedded one")

	meeting, err := c.Get("meeting-summary")
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, meeting.Source)

	_, err = c.Get("nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	list := c.List()
	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"blog-post", "custom", "meeting-summary"}, ids)
	assert.Equal(t, 3, c.Len())
}

func TestCatalogMissingDirAndBadPattern(t *testing.T) {
	t.Parallel()

	c, err := OpenCatalog(filepath.Join(t.TempDir(), "missing"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = c.LoadDir(t.TempDir(), "[")
	assert.Error(t, err)
}

func TestCatalogResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "local.yaml", "id: local\nsteps: []\n")

	c := NewCatalog()
	wf, err := c.Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, "local", wf.ID)

	_, err = c.Resolve("local")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuiltinWorkflowsRender(t *testing.T) {
	t.Parallel()

	builtin, err := Builtin()
	require.NoError(t, err)
	require.NotEmpty(t, builtin)

	for _, wf := range builtin {
		c := page.New(variable.ProfileVars{"sys_today": "2025-01-01", "sys_date": "January 1, 2025"})
		updates := c.Boot(wf.Document())
		assert.NotEmpty(t, updates, wf.ID)
	}
}
