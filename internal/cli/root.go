// Package cli implements the pf command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/randalmurphal/promptfinder/internal/config"
)

// Version is set at build time.
var Version = "0.1.0-dev"

var (
	cfgFile   string
	verbose   bool
	jsonOut   bool
	dbPath    string
	serverURL string
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pf",
		Short: "Fill and render Prompt Finder workflows",
		Long: `pf renders Prompt Finder workflow prompts from your inputs, saved presets
and profile values, and serves the preset API used by workflow pages.

Quick start:
  pf workflows                          List available workflows
  pf render blog-post --set topic=Go    Render every prompt once
  pf fill blog-post                     Fill a workflow interactively
  pf serve                              Start the API server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(initConfig)

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .pf/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides database.path)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "use a running pf server instead of the local database")
	_ = viper.BindPFlag("db", root.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("server", root.PersistentFlags().Lookup("server"))

	root.AddCommand(newRenderCmd())
	root.AddCommand(newFillCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newPresetCmd())
	root.AddCommand(newProfileCmd())
	root.AddCommand(newWorkflowsCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// initConfig locates the config file. Values themselves are loaded by
// loadConfig so every command sees the same layering.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.Dir)
		viper.AddConfigPath("$HOME/" + config.Dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("PF")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig loads the layered config and applies global flag overrides.
func loadConfig() (*config.TrackedConfig, error) {
	tc, err := config.LoadWithSources(cfgFile)
	if err != nil {
		return nil, err
	}
	if p := viper.GetString("db"); p != "" {
		tc.Config.Database.Driver = "sqlite"
		tc.Config.Database.Path = p
		tc.SetSource("database.driver", config.SourceFlag)
		tc.SetSource("database.path", config.SourceFlag)
	}
	if u := viper.GetString("server"); u != "" {
		tc.Config.Server.URL = u
		tc.SetSource("server.url", config.SourceFlag)
	}
	if err := tc.Config.Validate(); err != nil {
		return nil, err
	}
	setupLogger(tc.Config, verbose)
	return tc, nil
}
