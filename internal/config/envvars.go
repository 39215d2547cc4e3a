package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	pferrors "github.com/randalmurphal/promptfinder/internal/errors"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"PF_HOST":              "server.host",
	"PF_PORT":              "server.port",
	"PF_MAX_PORT_ATTEMPTS": "server.max_port_attempts",
	"PF_ALLOWED_ORIGINS":   "server.allowed_origins",
	"PF_SERVER":            "server.url",
	// Database settings
	"PF_DB_DRIVER":   "database.driver",
	"PF_DB_PATH":     "database.path",
	"PF_DB_HOST":     "database.postgres.host",
	"PF_DB_PORT":     "database.postgres.port",
	"PF_DB_NAME":     "database.postgres.database",
	"PF_DB_USER":     "database.postgres.user",
	"PF_DB_PASSWORD": "database.postgres.password",
	"PF_DB_SSL_MODE": "database.postgres.ssl_mode",
	// Workflows
	"PF_WORKFLOWS_DIR":     "workflows.dir",
	"PF_WORKFLOWS_PATTERN": "workflows.pattern",
	// Profile
	"PF_TIMEZONE":          "profile.timezone",
	"PF_PROFILE_CACHE_TTL": "profile.cache_ttl",
	// Logging
	"PF_LOG_LEVEL":  "log.level",
	"PF_LOG_FORMAT": "log.format",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns the config paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) ([]string, error) {
	envVars := make([]string, 0, len(EnvVarMapping))
	for envVar := range EnvVarMapping {
		envVars = append(envVars, envVar)
	}
	sort.Strings(envVars)

	var overridden []string
	for _, envVar := range envVars {
		value, ok := os.LookupEnv(envVar)
		if !ok {
			continue
		}
		path := EnvVarMapping[envVar]
		if err := Set(tc.Config, path, value); err != nil {
			return overridden, fmt.Errorf("%s: %w", envVar, err)
		}
		tc.SetSource(path, SourceEnv)
		overridden = append(overridden, path)
	}
	return overridden, nil
}

// Set assigns a string value to the config field at a dotted path.
func Set(cfg *Config, path, value string) error {
	switch path {
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		return setInt(&cfg.Server.Port, path, value)
	case "server.max_port_attempts":
		return setInt(&cfg.Server.MaxPortAttempts, path, value)
	case "server.allowed_origins":
		cfg.Server.AllowedOrigins = splitList(value)
	case "server.url":
		cfg.Server.URL = value
	case "database.driver":
		cfg.Database.Driver = value
	case "database.path":
		cfg.Database.Path = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		return setInt(&cfg.Database.Postgres.Port, path, value)
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	case "workflows.dir":
		cfg.Workflows.Dir = value
	case "workflows.pattern":
		cfg.Workflows.Pattern = value
	case "profile.timezone":
		cfg.Profile.Timezone = value
	case "profile.cache_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return pferrors.ErrConfigInvalid(path, err.Error())
		}
		cfg.Profile.CacheTTL = d
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "log.format":
		cfg.Log.Format = strings.ToLower(value)
	default:
		return pferrors.ErrConfigInvalid(path, "unknown config key")
	}
	return nil
}

func setInt(dst *int, path, value string) error {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return pferrors.ErrConfigInvalid(path, fmt.Sprintf("%q is not a number", value))
	}
	*dst = v
	return nil
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
