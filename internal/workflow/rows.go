package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/promptfinder/internal/variable"
)

// Rows is a list of variable definition rows. Rows are kept as raw JSON so
// the definition builder sees them exactly as a content source would supply
// them. YAML rows are converted to JSON with mapping order preserved.
type Rows []variable.Row

// Attr encodes the rows as a JSON array attribute. No rows yields "".
func (r Rows) Attr() string {
	if len(r) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r))
	for _, row := range r {
		parts = append(parts, string(row))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UnmarshalYAML converts a YAML sequence of rows to raw JSON rows.
func (r *Rows) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: variables must be a list", node.Line)
	}
	rows := make(Rows, 0, len(node.Content))
	for _, el := range node.Content {
		data, err := nodeJSON(el)
		if err != nil {
			return err
		}
		rows = append(rows, variable.Row(data))
	}
	*r = rows
	return nil
}

// nodeJSON encodes a YAML node as JSON, keeping mapping keys in document
// order so option objects keep their display order.
func nodeJSON(node *yaml.Node) ([]byte, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return nodeJSON(node.Alias)
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return []byte("null"), nil
		}
		return nodeJSON(node.Content[0])
	case yaml.MappingNode:
		var b strings.Builder
		b.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return nil, err
			}
			val, err := nodeJSON(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			b.Write(key)
			b.WriteByte(':')
			b.Write(val)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case yaml.SequenceNode:
		var b strings.Builder
		b.WriteByte('[')
		for i, el := range node.Content {
			if i > 0 {
				b.WriteByte(',')
			}
			val, err := nodeJSON(el)
			if err != nil {
				return nil, err
			}
			b.Write(val)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return json.Marshal(v)
	}
}
