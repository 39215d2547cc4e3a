package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/promptfinder/internal/config"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage pf configuration.

Configuration is loaded from multiple sources with this priority:
  1. Runtime: CLI flags, environment variables (PF_*)
  2. Project: .pf/config.yaml (or --config)
  3. User: ~/.pf/config.yaml
  4. Defaults: Built-in values

Subcommands:
  show        Show merged configuration
  get         Get a specific config value
  set         Set a config value
  init        Create .pf/config.yaml with defaults

Examples:
  pf config show                   # Show merged config as YAML
  pf config show --source          # Show with source annotations
  pf config get server.port
  pf config set database.driver postgres
  pf config set --user log.level debug`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show merged configuration",
		Long: `Show the merged configuration from all sources.

By default, outputs valid YAML. Use --source to see where each value comes from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := config.LoadWithSources(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if showSource {
				return printConfigWithSources(out, tc)
			}
			return printConfigAsYAML(out, tc.Config)
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "Show source for each value")
	return cmd
}

// newConfigGetCmd creates the 'config get' subcommand.
func newConfigGetCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a specific config value",
		Long: `Get a specific configuration value by key.

Keys use dot notation for nested values (e.g., "database.postgres.host").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			tc, err := config.LoadWithSources(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			value, err := tc.Config.GetValue(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSource {
				_, _ = fmt.Fprintf(out, "%s (from %s)\n", value, tc.GetSource(key))
			} else {
				_, _ = fmt.Fprintln(out, value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "Show source of the value")
	return cmd
}

// newConfigSetCmd creates the 'config set' subcommand.
func newConfigSetCmd() *cobra.Command {
	var setUser bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: `Set a configuration value.

By default, values are saved to the project config (.pf/config.yaml).
Use --user to save to ~/.pf/config.yaml instead.

Examples:
  pf config set server.port 9090
  pf config set --user profile.timezone Europe/Berlin`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			targetPath := filepath.Join(config.Dir, config.ConfigFileName)
			if setUser {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("get home directory: %w", err)
				}
				targetPath = filepath.Join(home, config.Dir, config.ConfigFileName)
			}

			cfg, err := config.LoadFrom(targetPath)
			if err != nil {
				return fmt.Errorf("load config from %s: %w", targetPath, err)
			}
			if err := config.Set(cfg, key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(targetPath); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, targetPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&setUser, "user", false, "Save to user config (~/.pf/config.yaml)")
	return cmd
}

// newConfigInitCmd creates the 'config init' subcommand.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .pf/config.yaml with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			path, err := config.Init(wd, force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func printConfigAsYAML(out io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func printConfigWithSources(out io.Writer, tc *config.TrackedConfig) error {
	values, err := tc.Config.Values()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := values[k]
		if k == "database.postgres.password" && v != "" {
			v = "********"
		}
		_, _ = fmt.Fprintf(out, "%s = %s (%s)\n", k, v, tc.GetSource(k))
	}
	return nil
}
