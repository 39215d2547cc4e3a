package variable

import (
	"strings"
)

// Resolver resolves tokens against the live store, the profile layer and
// the definitions of a ResolutionContext.
//
// Priority (first match wins):
//  1. non-empty live value
//  2. profile value, when a definition prefers system values
//  3. profile value, when the context allows the profile layer
//  4. step default, then workflow default
//  5. unresolved: the original {key} text
type Resolver struct {
	profile ProfileVars
	live    *LiveStore
}

// NewResolver creates a resolver over the given profile layer and live store.
// A nil live store is replaced by an empty one.
func NewResolver(profile ProfileVars, live *LiveStore) *Resolver {
	if live == nil {
		live = NewLiveStore()
	}
	if profile == nil {
		profile = ProfileVars{}
	}
	return &Resolver{profile: profile, live: live}
}

// Live returns the live store this resolver reads from.
func (r *Resolver) Live() *LiveStore {
	return r.live
}

// Profile returns the profile layer this resolver reads from.
func (r *Resolver) Profile() ProfileVars {
	return r.profile
}

// Resolve resolves a single token identifier. It never fails: an unresolved
// key comes back with Resolved=false and the original {key} text as Value.
func (r *Resolver) Resolve(rawKey string, rctx *ResolutionContext) Resolution {
	if rctx == nil {
		rctx = &ResolutionContext{}
	}
	key := Normalize(rawKey)
	stepDef := rctx.StepDefs.Get(key)
	wfDef := rctx.WorkflowDefs.Get(key)
	mode := injectionModeFor(stepDef, wfDef)

	resolved := func(value string, tier Tier) Resolution {
		return Resolution{Key: key, Value: value, Resolved: true, InjectionMode: mode, Tier: tier}
	}

	// Live input always wins, including over prefer-system.
	if v, ok := r.live.Get(key); ok && v != "" {
		return resolved(v, liveTier(stepDef, wfDef))
	}

	if (stepDef != nil && stepDef.PreferSystem) || (wfDef != nil && wfDef.PreferSystem) {
		if v, ok := r.preferSystem(rawKey, key, aliasFor(stepDef, wfDef), rctx.AllowProfile); ok {
			return resolved(v, TierProfile)
		}
	}

	if rctx.AllowProfile {
		lookup := aliasFor(stepDef, wfDef)
		if lookup == "" {
			lookup = key
		}
		if v, ok := r.profile.Lookup(lookup); ok {
			if s := FormatScalar(v); s != "" {
				return resolved(s, TierProfile)
			}
		}
	}

	if stepDef != nil && stepDef.DefaultValue != "" {
		return resolved(stepDef.DefaultValue, TierStep)
	}
	if wfDef != nil && wfDef.DefaultValue != "" {
		return resolved(wfDef.DefaultValue, TierWorkflow)
	}

	return Resolution{
		Key:           key,
		Value:         "{" + rawKey + "}",
		Resolved:      false,
		InjectionMode: mode,
		Tier:          TierNone,
	}
}

// preferSystem looks the key up in the profile layer for definitions that
// prefer system values. The alias-or-key lookup and the raw sys_ lookup
// overlap; both are kept so resolution order stays unchanged.
//
// An alias pointing at a non-system key only counts when the context allows
// the profile layer: only sys_ values may bypass that gate.
func (r *Resolver) preferSystem(rawKey, key, alias string, allowProfile bool) (string, bool) {
	if strings.HasPrefix(key, SystemPrefix) || alias != "" {
		lookup := alias
		if lookup == "" {
			lookup = key
		}
		if allowProfile || strings.HasPrefix(lookup, SystemPrefix) {
			if v, ok := r.profile.Lookup(lookup); ok {
				return FormatScalar(v), true
			}
		}
	}

	raw := strings.TrimSpace(rawKey)
	if strings.HasPrefix(raw, SystemPrefix) {
		if v, ok := r.profile.Lookup(raw); ok {
			return FormatScalar(v), true
		}
	}

	return "", false
}

// aliasFor returns the profile alias of the step definition, else the
// workflow definition, else "".
func aliasFor(stepDef, wfDef *Definition) string {
	if stepDef != nil && stepDef.ProfileKey != "" {
		return stepDef.ProfileKey
	}
	if wfDef != nil && wfDef.ProfileKey != "" {
		return wfDef.ProfileKey
	}
	return ""
}

func liveTier(stepDef, wfDef *Definition) Tier {
	switch {
	case stepDef != nil:
		return TierStep
	case wfDef != nil:
		return TierWorkflow
	default:
		return TierProfile
	}
}

func injectionModeFor(stepDef, wfDef *Definition) InjectionMode {
	switch {
	case stepDef != nil && stepDef.InjectionMode != "":
		return stepDef.InjectionMode
	case wfDef != nil && wfDef.InjectionMode != "":
		return wfDef.InjectionMode
	default:
		return InjectionConditional
	}
}
