// Package page binds the templates of one rendered workflow page to the
// variable resolver and keeps them current as the user types.
//
// A page is described by a Document: the marker data a server-side renderer
// embeds (workflow variables, step sections with their own variables, template
// elements and input fields). A Controller owns the page's live store and
// profile layer for its whole lifetime.
package page

import (
	"github.com/randalmurphal/promptfinder/internal/variable"
)

// Document is the embedded data of one workflow page.
type Document struct {
	WorkflowID string `json:"workflow_id"`

	// WorkflowVariables is the workflow-level JSON attribute: an array of
	// variable rows shared by every step.
	WorkflowVariables string `json:"workflow_variables,omitempty"`

	Steps []StepSection `json:"steps"`
}

// StepSection is one step container on the page.
type StepSection struct {
	ID string `json:"id"`

	// Variables is the step-level JSON attribute (array of variable rows).
	Variables string `json:"variables,omitempty"`

	// AllowProfile is the boolean-like opt-in attribute ("1", "true", ...).
	AllowProfile string `json:"allow_profile,omitempty"`

	Templates []TemplateElement `json:"templates,omitempty"`
	Inputs    []Input           `json:"inputs,omitempty"`
}

// TemplateElement is a prompt element. Base is the raw template text as
// emitted by the server; Value is what the element currently displays.
type TemplateElement struct {
	ID    string `json:"id"`
	Base  string `json:"base,omitempty"`
	Value string `json:"value,omitempty"`
}

// Input is an input field bound to a variable key.
type Input struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Update is the new text of one template element after a render.
type Update struct {
	StepID     string                `json:"step_id"`
	TemplateID string                `json:"template_id"`
	Text       string                `json:"text"`
	Tokens     []variable.TokenTrace `json:"tokens,omitempty"`
}

// ParseFlag interprets a boolean-like attribute value.
func ParseFlag(attr string) bool {
	return variable.ParseFlag(attr)
}
