package variable

import (
	"regexp"
	"strings"
)

// tokenPattern matches {identifier} and {identifier|fallback} tokens.
// Braces cannot nest and there is no escaping.
var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// TokenTrace records how one token occurrence was rendered.
// It exists for UI attribution only.
type TokenTrace struct {
	// Token is the full matched text, braces included.
	Token string `json:"token"`

	// Key is the normalized identifier.
	Key string `json:"key"`

	Fallback    string `json:"fallback,omitempty"`
	HasFallback bool   `json:"has_fallback,omitempty"`

	// Value is the text substituted into the output.
	Value string `json:"value"`

	Resolved      bool          `json:"resolved"`
	Tier          Tier          `json:"tier,omitempty"`
	InjectionMode InjectionMode `json:"injection_mode"`
}

// Rendered is a rendered template with per-token provenance.
type Rendered struct {
	Text   string       `json:"text"`
	Tokens []TokenTrace `json:"tokens,omitempty"`
}

// Render substitutes every token in template.
//
// Resolved tokens are replaced verbatim (no escaping). Unresolved tokens use
// their fallback text when present; otherwise direct mode removes them and
// conditional mode leaves the {key} text in place.
func (r *Resolver) Render(template string, rctx *ResolutionContext) string {
	return r.RenderTracked(template, rctx).Text
}

// RenderTracked is Render plus a record of which tier satisfied each token.
func (r *Resolver) RenderTracked(template string, rctx *ResolutionContext) Rendered {
	var traces []TokenTrace
	text := tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		ident, fallback, hasFallback := strings.Cut(match[1:len(match)-1], "|")
		res := r.Resolve(ident, rctx)

		out := res.Value
		if !res.Resolved {
			switch {
			case hasFallback:
				out = fallback
			case res.InjectionMode == InjectionDirect:
				out = ""
			}
		}

		traces = append(traces, TokenTrace{
			Token:         match,
			Key:           res.Key,
			Fallback:      fallback,
			HasFallback:   hasFallback,
			Value:         out,
			Resolved:      res.Resolved,
			Tier:          res.Tier,
			InjectionMode: res.InjectionMode,
		})
		return out
	})
	return Rendered{Text: text, Tokens: traces}
}

// Keys returns the distinct normalized keys referenced by template, in the
// order they first appear. Empty identifiers are skipped.
func Keys(template string) []string {
	matches := tokenPattern.FindAllStringSubmatch(template, -1)
	seen := make(map[string]bool, len(matches))
	var keys []string
	for _, m := range matches {
		ident, _, _ := strings.Cut(m[1], "|")
		key := Normalize(ident)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// References reports whether template contains a token for key.
func References(template, key string) bool {
	key = Normalize(key)
	for _, k := range Keys(template) {
		if k == key {
			return true
		}
	}
	return false
}

// Segment is either a literal run of template text or the output of one
// token. Token is nil for literals.
type Segment struct {
	Text  string
	Token *TokenTrace
}

// Segments splits a tracked render of template back into literal text and
// per-token output, in template order. If r does not belong to template the
// whole text comes back as one literal.
func Segments(template string, r Rendered) []Segment {
	spans := tokenPattern.FindAllStringIndex(template, -1)
	if len(spans) != len(r.Tokens) {
		return []Segment{{Text: r.Text}}
	}

	segs := make([]Segment, 0, 2*len(spans)+1)
	pos := 0
	for i, span := range spans {
		if span[0] > pos {
			segs = append(segs, Segment{Text: template[pos:span[0]]})
		}
		tok := &r.Tokens[i]
		if tok.Token != template[span[0]:span[1]] {
			return []Segment{{Text: r.Text}}
		}
		segs = append(segs, Segment{Text: tok.Value, Token: tok})
		pos = span[1]
	}
	if pos < len(template) {
		segs = append(segs, Segment{Text: template[pos:]})
	}
	return segs
}
