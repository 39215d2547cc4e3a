package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. User config (~/.pf/config.yaml) - optional
//  3. Project config (.pf/config.yaml), or explicitPath when set
//  4. Environment variables (PF_*)
//
// The result is validated.
func LoadWithSources(explicitPath string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, Dir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	if explicitPath != "" {
		if err := mergeFromFile(tc, explicitPath, SourceProject); err != nil {
			return nil, err
		}
	} else {
		projectPath := filepath.Join(Dir, ConfigFileName)
		if _, err := os.Stat(projectPath); err == nil {
			if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
				return nil, err // Project config errors are fatal
			}
		}
	}

	if _, err := ApplyEnvVars(tc); err != nil {
		return nil, err
	}

	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	return tc, nil
}

// mergeFromFile decodes path over tc.Config and records the source of every
// key the file sets.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Decoding onto the existing struct keeps fields the file omits.
	if err := yaml.Unmarshal(data, tc.Config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, key := range leafPaths("", raw) {
		tc.SetSourceWithPath(key, source, path)
	}
	tc.Files = append(tc.Files, path)
	return nil
}

// leafPaths flattens nested YAML maps into sorted dotted paths.
func leafPaths(prefix string, m map[string]any) []string {
	var out []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			out = append(out, leafPaths(key, nested)...)
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
