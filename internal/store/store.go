// Package store provides the per-user key/value persistence behind workflow
// pages: saved presets of input values, profile values, and step visits.
package store

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
	"github.com/randalmurphal/promptfinder/internal/variable"
)

const (
	// MaxPresetsPerWorkflow caps how many presets one user keeps per workflow.
	MaxPresetsPerWorkflow = 50

	// MaxPresetNameLength is the longest preset name, in characters.
	MaxPresetNameLength = 100

	// ExportVersion is the current preset export format.
	ExportVersion = 1

	defaultVisitLimit = 50
)

// UserID is the opaque per-user identifier, a canonical UUID string.
type UserID string

// ParseUserID validates s and returns its canonical form.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", pferrors.ErrUserInvalid(s).WithCause(err)
	}
	return UserID(u.String()), nil
}

// NewUserID returns a fresh random identifier.
func NewUserID() UserID {
	return UserID(uuid.NewString())
}

func (u UserID) String() string { return string(u) }

// Preset is a named set of input values for one workflow.
type Preset struct {
	Name       string            `json:"name"`
	WorkflowID string            `json:"workflow_id,omitempty"`
	Values     map[string]string `json:"values"`
	CreatedAt  time.Time         `json:"created_at,omitzero"`
	UpdatedAt  time.Time         `json:"updated_at,omitzero"`
}

// Export is the portable form of a user's presets for one workflow.
type Export struct {
	Version    int       `json:"version"`
	WorkflowID string    `json:"workflow_id"`
	ExportedAt time.Time `json:"exported_at"`
	Presets    []Preset  `json:"presets"`
}

// ImportResult lists which preset names were written and which were left
// alone because they already existed.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
}

// Visit records that a user opened a step of a workflow.
type Visit struct {
	WorkflowID string    `json:"workflow_id"`
	StepID     string    `json:"step_id"`
	VisitedAt  time.Time `json:"visited_at"`
}

// Store is the persistence surface used by the API and CLI.
// Implementations must be safe for concurrent use.
type Store interface {
	ResolveUser(ctx context.Context, platformID string) (UserID, error)

	ListPresets(ctx context.Context, uid UserID, workflowID string) ([]Preset, error)
	GetPreset(ctx context.Context, uid UserID, workflowID, name string) (*Preset, error)
	PutPreset(ctx context.Context, uid UserID, workflowID string, p Preset) (*Preset, error)
	DeletePreset(ctx context.Context, uid UserID, workflowID, name string) error
	ExportPresets(ctx context.Context, uid UserID, workflowID string) (*Export, error)
	ImportPresets(ctx context.Context, uid UserID, workflowID string, exp *Export, overwrite bool) (*ImportResult, error)

	GetProfileVars(ctx context.Context, uid UserID) (map[string]string, error)
	SetProfileVars(ctx context.Context, uid UserID, vars map[string]string, replace bool) (map[string]string, error)

	RecordVisit(ctx context.Context, uid UserID, workflowID, stepID string) error
	ListVisits(ctx context.Context, uid UserID, limit int) ([]Visit, error)

	Close() error
}

// NormalizePresetName trims name and checks its length.
func NormalizePresetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pferrors.ErrPresetInvalid("preset name is empty")
	}
	if utf8.RuneCountInString(name) > MaxPresetNameLength {
		return "", pferrors.ErrPresetInvalid("preset name is longer than 100 characters")
	}
	return name, nil
}

// NormalizeValues returns values with normalized keys. Blank keys are dropped;
// when two keys normalize to the same one, the lexically last raw key wins.
func NormalizeValues(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	raw := make(map[string]string, len(values))
	for k, v := range values {
		key := variable.Normalize(k)
		if key == "" {
			continue
		}
		if prev, ok := raw[key]; ok && prev > k {
			continue
		}
		raw[key] = k
		out[key] = v
	}
	return out
}

// NormalizeProfileVars normalizes keys and rejects the system namespace.
func NormalizeProfileVars(vars map[string]string) (map[string]string, error) {
	for k := range vars {
		if strings.HasPrefix(variable.Normalize(k), variable.SystemPrefix) {
			return nil, pferrors.ErrProfileKeyReserved(k)
		}
	}
	return NormalizeValues(vars), nil
}
