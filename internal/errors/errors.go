// Package errors provides structured error types for Prompt Finder.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes.
const (
	// Workflow errors
	CodeWorkflowNotFound Code = "WORKFLOW_NOT_FOUND"

	// Preset errors
	CodePresetNotFound Code = "PRESET_NOT_FOUND"
	CodePresetInvalid  Code = "PRESET_INVALID"
	CodePresetLimit    Code = "PRESET_LIMIT"
	CodeImportInvalid  Code = "IMPORT_INVALID"

	// User and profile errors
	CodeUserInvalid        Code = "USER_INVALID"
	CodeProfileKeyReserved Code = "PROFILE_KEY_RESERVED"

	// Config errors
	CodeConfigInvalid Code = "CONFIG_INVALID"
	CodeConfigMissing Code = "CONFIG_MISSING"

	// Backend errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"

	codeUnknown Code = "UNKNOWN"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
	CategoryUnavailable
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeWorkflowNotFound:   CategoryNotFound,
	CodePresetNotFound:     CategoryNotFound,
	CodePresetInvalid:      CategoryBadRequest,
	CodePresetLimit:        CategoryConflict,
	CodeImportInvalid:      CategoryBadRequest,
	CodeUserInvalid:        CategoryBadRequest,
	CodeProfileKeyReserved: CategoryBadRequest,
	CodeConfigInvalid:      CategoryBadRequest,
	CodeConfigMissing:      CategoryBadRequest,
	CodeStoreUnavailable:   CategoryUnavailable,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryNotFound:
		return 404
	case CategoryBadRequest:
		return 400
	case CategoryConflict:
		return 409
	case CategoryUnavailable:
		return 503
	default:
		return 500
	}
}

// PFError is the structured error type.
type PFError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *PFError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PFError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly message for CLI output.
func (e *PFError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Error: ")
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString("\n\nWhy: ")
		b.WriteString(e.Why)
	}
	if e.Fix != "" {
		b.WriteString("\n\nFix: ")
		b.WriteString(e.Fix)
	}
	return b.String()
}

// Category returns the error category for HTTP status mapping.
func (e *PFError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *PFError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// MarshalJSON implements json.Marshaler.
func (e *PFError) MarshalJSON() ([]byte, error) {
	type alias PFError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is a PFError with the same code.
func (e *PFError) Is(target error) bool {
	t, ok := target.(*PFError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *PFError) WithCause(err error) *PFError {
	return &PFError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Fix:   e.Fix,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrWorkflowNotFound returns an error when a workflow is not in the catalog.
func ErrWorkflowNotFound(id string) *PFError {
	return &PFError{
		Code: CodeWorkflowNotFound,
		What: fmt.Sprintf("workflow %s not found", id),
		Why:  "No workflow with this ID is embedded or present in the workflows directory",
		Fix:  "Run 'pf workflows' to list available workflows, or pass a path to a workflow file",
	}
}

// ErrPresetNotFound returns an error when a preset doesn't exist.
func ErrPresetNotFound(workflowID, name string) *PFError {
	return &PFError{
		Code: CodePresetNotFound,
		What: fmt.Sprintf("preset %q not found for workflow %s", name, workflowID),
		Fix:  fmt.Sprintf("Run 'pf preset list %s' to see saved presets", workflowID),
	}
}

// ErrPresetInvalid returns an error for a malformed preset.
func ErrPresetInvalid(reason string) *PFError {
	return &PFError{
		Code: CodePresetInvalid,
		What: "invalid preset",
		Why:  reason,
	}
}

// ErrPresetLimit returns an error when a workflow already has the maximum
// number of presets.
func ErrPresetLimit(workflowID string, limit int) *PFError {
	return &PFError{
		Code: CodePresetLimit,
		What: fmt.Sprintf("preset limit reached for workflow %s", workflowID),
		Why:  fmt.Sprintf("At most %d presets can be saved per workflow", limit),
		Fix:  "Delete an unused preset or overwrite an existing one",
	}
}

// ErrImportInvalid returns an error for an unusable preset export.
func ErrImportInvalid(reason string) *PFError {
	return &PFError{
		Code: CodeImportInvalid,
		What: "invalid preset import",
		Why:  reason,
		Fix:  "Import a file produced by 'pf preset export'",
	}
}

// ErrUserInvalid returns an error for a malformed user identifier.
func ErrUserInvalid(id string) *PFError {
	return &PFError{
		Code: CodeUserInvalid,
		What: fmt.Sprintf("invalid user id %q", id),
		Why:  "User ids are UUIDs issued by the identity endpoint",
		Fix:  "Resolve a user id with 'POST /api/identity' first",
	}
}

// ErrProfileKeyReserved returns an error when a write targets a system key.
func ErrProfileKeyReserved(key string) *PFError {
	return &PFError{
		Code: CodeProfileKeyReserved,
		What: fmt.Sprintf("profile key %q is reserved", key),
		Why:  "Keys starting with sys_ are generated by the system",
		Fix:  "Choose a key without the sys_ prefix",
	}
}

// ErrConfigInvalid returns an error for invalid configuration.
func ErrConfigInvalid(field, reason string) *PFError {
	return &PFError{
		Code: CodeConfigInvalid,
		What: fmt.Sprintf("invalid configuration: %s", field),
		Why:  reason,
		Fix:  "Check .pf/config.yaml and fix the invalid field",
	}
}

// ErrConfigMissing returns an error for missing configuration.
func ErrConfigMissing(field string) *PFError {
	return &PFError{
		Code: CodeConfigMissing,
		What: fmt.Sprintf("missing required configuration: %s", field),
		Why:  "This field is required but not set in configuration",
		Fix:  fmt.Sprintf("Add '%s' to .pf/config.yaml", field),
	}
}

// ErrStoreUnavailable returns an error when the preset store cannot be reached.
func ErrStoreUnavailable(cause error) *PFError {
	return &PFError{
		Code:  CodeStoreUnavailable,
		What:  "preset store unavailable",
		Fix:   "Check the database settings, or the --server address",
		Cause: cause,
	}
}

// AsPFError returns the first PFError in err's chain, or nil.
func AsPFError(err error) *PFError {
	var pfErr *PFError
	if stderrors.As(err, &pfErr) {
		return pfErr
	}
	return nil
}

// Wrap wraps a generic error into a PFError with unknown code.
func Wrap(err error, what string) *PFError {
	return &PFError{
		Code:  codeUnknown,
		What:  what,
		Cause: err,
	}
}
