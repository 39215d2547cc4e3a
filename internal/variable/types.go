// Package variable provides the placeholder resolution system for Prompt Finder
// workflows. It resolves {key} and {key|fallback} tokens inside prompt
// templates from layered sources: live user input, system values, the user's
// profile, and step or workflow defaults.
package variable

import (
	"maps"
	"strconv"
	"strings"
	"sync"
)

// SystemPrefix marks system-generated profile keys (current date, time, ...).
const SystemPrefix = "sys_"

// Normalize returns the canonical form of a variable key.
// Every key source (definitions, live store, profile, tokens) must go through
// this or lookups silently miss.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Scope identifies which kind of marker a definition came from.
type Scope string

const (
	// ScopeStep definitions belong to a single step section.
	ScopeStep Scope = "step"

	// ScopeWorkflow definitions are shared by every step of a workflow.
	ScopeWorkflow Scope = "workflow"
)

// InjectionMode controls how an unresolved token is rendered.
type InjectionMode string

const (
	// InjectionConditional keeps unresolved tokens visible so the user
	// can see which inputs are still needed.
	InjectionConditional InjectionMode = "conditional"

	// InjectionDirect drops unresolved tokens from the output.
	InjectionDirect InjectionMode = "direct"
)

// ParseInjectionMode parses a mode string. Anything other than "direct"
// yields InjectionConditional.
func ParseInjectionMode(s string) InjectionMode {
	if Normalize(s) == string(InjectionDirect) {
		return InjectionDirect
	}
	return InjectionConditional
}

// Tier identifies the source that satisfied a resolution.
type Tier string

const (
	// TierNone marks an unresolved token.
	TierNone Tier = ""

	// TierStep is a step-scoped definition (live value or default).
	TierStep Tier = "step"

	// TierWorkflow is a workflow-scoped definition (live value or default).
	TierWorkflow Tier = "workflow"

	// TierProfile is the profile/global layer, including sys_* values.
	TierProfile Tier = "profile"
)

// Option is a selectable value for a definition rendered as a choice input.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Definition is a normalized variable definition for one scope.
type Definition struct {
	// Key is the normalized identifier, unique within its scope.
	Key string `json:"key"`

	// Display metadata. Not used for resolution.
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Description string `json:"description,omitempty"`
	Hint        string `json:"hint,omitempty"`

	Required bool `json:"required"`

	// DefaultValue is used only when nothing with higher priority resolves
	// the key. For step rows it falls back to the row's example value.
	DefaultValue string `json:"default_value,omitempty"`

	// Type and Options are UI affordances.
	Type    string   `json:"type,omitempty"`
	Options []Option `json:"options,omitempty"`

	// ProfileKey is a normalized alias used when looking the value up in the
	// profile layer. Empty means the definition's own key.
	ProfileKey string `json:"profile_key,omitempty"`

	// PreferSystem lets the profile layer (system or aliased values) beat
	// defaults, even where the step does not allow profile values.
	// It never beats live input.
	PreferSystem bool `json:"prefer_system,omitempty"`

	// InjectionMode applies when the key stays unresolved. Only workflow
	// rows carry a mode from source data; step rows are always conditional.
	InjectionMode InjectionMode `json:"injection_mode"`

	Scope Scope `json:"scope"`
}

// DefinitionMap maps normalized keys to definitions of one scope.
type DefinitionMap map[string]*Definition

// Get returns the definition for key, normalizing it first.
// A nil map returns nil.
func (m DefinitionMap) Get(key string) *Definition {
	if m == nil {
		return nil
	}
	return m[Normalize(key)]
}

// Keys returns the definition keys in no particular order.
func (m DefinitionMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ProfileVars holds the profile/global layer: system values plus, when the
// viewer is eligible, the user's saved profile values. Keys are normalized
// and values are scalars. It is immutable for the lifetime of a page.
type ProfileVars map[string]any

// NewProfileVars copies src into a ProfileVars, normalizing keys and dropping
// non-scalar and nil values.
func NewProfileVars(src map[string]any) ProfileVars {
	pv := make(ProfileVars, len(src))
	for k, v := range src {
		key := Normalize(k)
		if key == "" || !isScalar(v) {
			continue
		}
		pv[key] = v
	}
	return pv
}

// Lookup returns the raw value stored under key.
func (p ProfileVars) Lookup(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p[Normalize(key)]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// FormatScalar renders a profile value as template text.
func FormatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	default:
		return ""
	}
}

// LiveStore holds what the user has typed on the current page, keyed by
// normalized variable name. It is created once per page and shared by every
// template on it. Entries are overwritten but never deleted.
type LiveStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewLiveStore creates an empty live store.
func NewLiveStore() *LiveStore {
	return &LiveStore{values: make(map[string]string)}
}

// Set stores value under the normalized key. Empty keys are ignored.
// Returns the normalized key.
func (s *LiveStore) Set(key, value string) string {
	k := Normalize(key)
	if k == "" {
		return ""
	}
	s.mu.Lock()
	s.values[k] = value
	s.mu.Unlock()
	return k
}

// Get returns the stored value for key.
func (s *LiveStore) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[Normalize(key)]
	return v, ok
}

// Len returns the number of stored keys.
func (s *LiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of the stored values.
func (s *LiveStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Merge writes every entry of values into the store.
func (s *LiveStore) Merge(values map[string]string) {
	for k, v := range values {
		s.Set(k, v)
	}
}

// ResolutionContext is the scope a template is rendered in, typically one
// step section of a page.
type ResolutionContext struct {
	// StepDefs are the definitions of this step only.
	StepDefs DefinitionMap

	// WorkflowDefs are shared by every step of the workflow.
	WorkflowDefs DefinitionMap

	// AllowProfile opts this step into the profile layer.
	AllowProfile bool
}

// Resolution is the outcome of resolving a single token.
type Resolution struct {
	// Key is the normalized key that was resolved.
	Key string `json:"key"`

	// Value is the resolved value, or the original {key} text when unresolved.
	Value string `json:"value"`

	Resolved      bool          `json:"resolved"`
	InjectionMode InjectionMode `json:"injection_mode"`
	Tier          Tier          `json:"tier,omitempty"`
}
