package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Values returns every config leaf keyed by its dotted path
// ("server.port"). Lists are joined with commas.
func (c *Config) Values() (map[string]string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	out := make(map[string]string)
	flatten("", tree, out)
	for _, path := range EnvVarMapping {
		if _, ok := out[path]; !ok {
			out[path] = ""
		}
	}
	return out, nil
}

// GetValue returns the value at a dotted path.
func (c *Config) GetValue(path string) (string, error) {
	values, err := c.Values()
	if err != nil {
		return "", err
	}
	v, ok := values[path]
	if !ok {
		return "", fmt.Errorf("unknown config key %q", path)
	}
	return v, nil
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch tv := v.(type) {
		case map[string]any:
			flatten(key, tv, out)
		case []any:
			parts := make([]string, len(tv))
			for i, item := range tv {
				parts[i] = fmt.Sprint(item)
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(tv)
		}
	}
}
