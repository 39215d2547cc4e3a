package page

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptfinder/internal/variable"
)

func testDocument() Document {
	return Document{
		WorkflowID:        "blog-post",
		WorkflowVariables: `[{"key":"audience","default_value":"engineers"},{"key":"format","injection_mode":"direct"}]`,
		Steps: []StepSection{
			{
				ID:           "outline",
				Variables:    `[{"key":"topic","example_value":"AI safety"},{"key":"sys_today","prefer_system":true}]`,
				AllowProfile: "0",
				Templates: []TemplateElement{
					{ID: "outline-1", Base: "Outline {topic} for {audience} ({sys_today}).{format}"},
					{ID: "outline-2", Base: "Tone: {tone|neutral}"},
				},
				Inputs: []Input{{Key: "topic"}, {Key: "tone"}},
			},
			{
				ID:           "draft",
				Variables:    `[{"key":"length","default_value":"800 words"}]`,
				AllowProfile: "true",
				Templates: []TemplateElement{
					{ID: "draft-1", Base: "Write {length} for {company}."},
				},
			},
		},
	}
}

func testProfile() variable.ProfileVars {
	return variable.ProfileVars{"sys_today": "2025-01-01", "company": "Acme"}
}

func textByID(updates []Update) map[string]string {
	out := make(map[string]string, len(updates))
	for _, u := range updates {
		out[u.TemplateID] = u.Text
	}
	return out
}

func TestBootRendersEveryTemplate(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	updates := c.Boot(testDocument())

	require.Len(t, updates, 3)
	texts := textByID(updates)
	assert.Equal(t, "Outline AI safety for engineers (2025-01-01).", texts["outline-1"])
	assert.Equal(t, "Tone: neutral", texts["outline-2"])
	assert.Equal(t, "Write 800 words for Acme.", texts["draft-1"])

	assert.Equal(t, []string{"outline", "draft"}, c.Steps())
	assert.Equal(t, "blog-post", c.WorkflowID())
	assert.Equal(t, []string{"outline-1", "outline-2"}, c.StepTemplates("outline"))
}

func TestProfileGatePerStep(t *testing.T) {
	t.Parallel()

	doc := testDocument()
	doc.Steps[0].Templates = append(doc.Steps[0].Templates, TemplateElement{ID: "outline-3", Base: "For {company}"})

	c := New(testProfile())
	texts := textByID(c.Boot(doc))

	assert.Equal(t, "For {company}", texts["outline-3"], "step without opt-in must not see profile values")
	assert.Equal(t, "Write 800 words for Acme.", texts["draft-1"])
}

func TestSetInputRerendersStep(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	c.Boot(testDocument())

	updates := c.SetInput("outline", "Topic", "Go generics")
	require.Len(t, updates, 2, "every template of the step re-renders")
	assert.Equal(t, "Outline Go generics for engineers (2025-01-01).", textByID(updates)["outline-1"])

	el, ok := c.Template("outline-1")
	require.True(t, ok)
	assert.Equal(t, "Outline Go generics for engineers (2025-01-01).", el.Value)
	assert.Equal(t, "Outline {topic} for {audience} ({sys_today}).{format}", el.Base, "base is captured once")

	v, _ := c.Live().Get("topic")
	assert.Equal(t, "Go generics", v)
}

func TestSetInputLiveBeatsPreferSystem(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	c.Boot(testDocument())

	updates := c.SetInput("outline", "sys_today", "tomorrow")
	assert.Equal(t, "Outline AI safety for engineers (tomorrow).", textByID(updates)["outline-1"])
}

func TestSetInputClearingFallsBack(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	c.Boot(testDocument())

	c.SetInput("outline", "tone", "formal")
	el, _ := c.Template("outline-2")
	assert.Equal(t, "Tone: formal", el.Value)

	c.SetInput("outline", "tone", "")
	el, _ = c.Template("outline-2")
	assert.Equal(t, "Tone: neutral", el.Value)
}

func TestSetInputWithDependencyIndex(t *testing.T) {
	t.Parallel()

	c := New(testProfile(), WithDependencyIndex(true))
	c.Boot(testDocument())

	updates := c.SetInput("outline", "tone", "playful")
	require.Len(t, updates, 1)
	assert.Equal(t, "outline-2", updates[0].TemplateID)
	assert.Equal(t, "Tone: playful", updates[0].Text)
}

func TestSetInputOutsideStep(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	c.Boot(testDocument())

	assert.Empty(t, c.SetInput("nowhere", "length", "300 words"))
	assert.Empty(t, c.SetInput("outline", "  ", "ignored"))

	// The live store is shared, so a rescan picks the value up.
	texts := textByID(c.Rescan())
	assert.Equal(t, "Write 300 words for Acme.", texts["draft-1"])
}

func TestSeedFromInputs(t *testing.T) {
	t.Parallel()

	doc := testDocument()
	doc.Steps[0].Inputs = []Input{{Key: "Topic", Value: "pre-filled"}}

	c := New(testProfile())
	texts := textByID(c.Boot(doc))
	assert.Equal(t, "Outline pre-filled for engineers (2025-01-01).", texts["outline-1"])
}

func TestMissingBaseTemplate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	doc := Document{
		WorkflowID: "wf",
		Steps: []StepSection{{
			ID: "s1",
			Templates: []TemplateElement{
				{ID: "from-value", Value: "Hi {name|there}"},
				{ID: "empty"},
			},
		}},
	}

	c := New(nil, WithLogger(logger))
	updates := c.Boot(doc)

	require.Len(t, updates, 1)
	assert.Equal(t, "Hi there", updates[0].Text)
	_, ok := c.Template("empty")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "template has no base text")
}

func TestMalformedVariablesDegradeSilently(t *testing.T) {
	t.Parallel()

	doc := Document{
		WorkflowVariables: `[{"key":"x"`,
		Steps: []StepSection{{
			ID:        "s1",
			Variables: "not json",
			Templates: []TemplateElement{{ID: "t", Base: "{x} and {y|why}"}},
		}},
	}

	c := New(nil)
	updates := c.Boot(doc)
	require.Len(t, updates, 1)
	assert.Equal(t, "{x} and why", updates[0].Text)
}

func TestAddStep(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	c.Boot(testDocument())
	c.SetInput("outline", "topic", "kept")

	updates := c.AddStep(StepSection{
		ID:        "review",
		Variables: `[{"key":"reviewer","default_value":"editor"}]`,
		Templates: []TemplateElement{{ID: "review-1", Base: "{reviewer} reviews {topic}"}},
	})

	require.Len(t, updates, 4, "adding a step rescans the whole page")
	texts := textByID(updates)
	assert.Equal(t, "editor reviews kept", texts["review-1"])
	assert.Equal(t, []string{"outline", "draft", "review"}, c.Steps())

	// Re-adding a known ID replaces the section in place.
	c.AddStep(StepSection{ID: "review", Templates: []TemplateElement{{ID: "review-2", Base: "done"}}})
	assert.Equal(t, []string{"outline", "draft", "review"}, c.Steps())
	_, ok := c.Template("review-1")
	assert.False(t, ok)
	_, ok = c.Template("review-2")
	assert.True(t, ok)
}

func TestGeneratedTemplateIDs(t *testing.T) {
	t.Parallel()

	c := New(nil)
	c.Boot(Document{Steps: []StepSection{{ID: "s", Templates: []TemplateElement{{Base: "a"}, {Base: "b"}}}}})
	assert.Equal(t, []string{"s#0", "s#1"}, c.StepTemplates("s"))
}

func TestUpdatesCarryProvenance(t *testing.T) {
	t.Parallel()

	c := New(testProfile())
	updates := c.Boot(testDocument())

	var draft Update
	for _, u := range updates {
		if u.TemplateID == "draft-1" {
			draft = u
		}
	}
	require.Len(t, draft.Tokens, 2)
	assert.Equal(t, variable.TierStep, draft.Tokens[0].Tier)
	assert.Equal(t, variable.TierProfile, draft.Tokens[1].Tier)
}
