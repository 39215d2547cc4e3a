package variable

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Row is a raw variable definition row as supplied by the content source.
// Rows are loosely shaped: booleans may arrive as "1" or 1, options may be a
// JSON-encoded string or inline JSON, and any field may be missing.
type Row = json.RawMessage

// BuildMap turns raw rows into a normalized DefinitionMap for scope.
//
// Behavior:
//   - Rows that are not JSON objects are skipped
//   - Rows with an empty or missing key are skipped
//   - A later row with the same key replaces an earlier one
//   - Nothing here returns an error; malformed fields degrade to defaults
func BuildMap(rows []Row, scope Scope) DefinitionMap {
	defs := make(DefinitionMap, len(rows))
	for _, row := range rows {
		def := buildDefinition(row, scope)
		if def == nil {
			continue
		}
		defs[def.Key] = def
	}
	return defs
}

// BuildList is BuildMap in row order. A duplicate key keeps the position of
// its first row and the content of its last.
func BuildList(rows []Row, scope Scope) []*Definition {
	var defs []*Definition
	pos := make(map[string]int, len(rows))
	for _, row := range rows {
		def := buildDefinition(row, scope)
		if def == nil {
			continue
		}
		if i, ok := pos[def.Key]; ok {
			defs[i] = def
			continue
		}
		pos[def.Key] = len(defs)
		defs = append(defs, def)
	}
	return defs
}

// BuildMapJSON parses a marker attribute holding a JSON array of rows.
// Malformed JSON, or anything that is not an array, yields an empty map.
func BuildMapJSON(attr string, scope Scope) DefinitionMap {
	attr = strings.TrimSpace(attr)
	if attr == "" || !gjson.Valid(attr) {
		return DefinitionMap{}
	}
	parsed := gjson.Parse(attr)
	if !parsed.IsArray() {
		return DefinitionMap{}
	}
	var rows []Row
	parsed.ForEach(func(_, value gjson.Result) bool {
		rows = append(rows, Row(value.Raw))
		return true
	})
	return BuildMap(rows, scope)
}

func buildDefinition(row Row, scope Scope) *Definition {
	if len(row) == 0 || !gjson.ValidBytes(row) {
		return nil
	}
	r := gjson.ParseBytes(row)
	if !r.IsObject() {
		return nil
	}

	key := Normalize(firstString(r, "key", "var_key"))
	if key == "" {
		return nil
	}

	def := &Definition{
		Key:           key,
		Label:         r.Get("label").String(),
		Placeholder:   r.Get("placeholder").String(),
		Description:   r.Get("description").String(),
		Hint:          r.Get("hint").String(),
		Required:      flag(r.Get("required")),
		DefaultValue:  r.Get("default_value").String(),
		Type:          r.Get("type").String(),
		Options:       optionsField(r),
		ProfileKey:    Normalize(r.Get("profile_key").String()),
		PreferSystem:  flag(r.Get("prefer_system")),
		InjectionMode: InjectionConditional,
		Scope:         scope,
	}

	switch scope {
	case ScopeStep:
		if def.DefaultValue == "" {
			def.DefaultValue = r.Get("example_value").String()
		}
	case ScopeWorkflow:
		def.InjectionMode = ParseInjectionMode(r.Get("injection_mode").String())
	}

	return def
}

// ParseOptions decodes a JSON-encoded options list.
//
//   - ["a","b"] becomes [{a a} {b b}]
//   - [{"value":"a","label":"A"}] is taken as written
//   - {"a":"Alpha"} becomes [{a Alpha}], in source order
//   - anything else, including a parse error, yields an empty slice
func ParseOptions(raw string) []Option {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return []Option{}
	}
	return optionsFromResult(gjson.Parse(raw))
}

func optionsField(r gjson.Result) []Option {
	v := r.Get("options")
	if !v.Exists() {
		v = r.Get("options_json")
	}
	switch {
	case !v.Exists():
		return []Option{}
	case v.Type == gjson.String:
		return ParseOptions(v.String())
	default:
		return optionsFromResult(v)
	}
}

func optionsFromResult(r gjson.Result) []Option {
	opts := []Option{}
	switch {
	case r.IsArray():
		r.ForEach(func(_, el gjson.Result) bool {
			switch {
			case el.IsObject():
				value := el.Get("value").String()
				if value == "" {
					return true
				}
				label := el.Get("label").String()
				if label == "" {
					label = value
				}
				opts = append(opts, Option{Value: value, Label: label})
			case el.Type == gjson.Null:
			default:
				s := el.String()
				opts = append(opts, Option{Value: s, Label: s})
			}
			return true
		})
	case r.IsObject():
		r.ForEach(func(k, el gjson.Result) bool {
			opts = append(opts, Option{Value: k.String(), Label: el.String()})
			return true
		})
	}
	return opts
}

// ParseFlag interprets a boolean-like attribute: "1", "true", "yes" and "on"
// (any case, surrounding space ignored) are true; everything else is false.
func ParseFlag(s string) bool {
	switch Normalize(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func flag(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return ParseFlag(r.Str)
	}
	return false
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}
