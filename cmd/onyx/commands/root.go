// Package commands implements CLI commands.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/internal/debug"
	"github.com/onyx-dev/onyx-database-go/internal/ui"
	"github.com/onyx-dev/onyx-database-go/pkg/config"
)

// globalFlags are shared by every command.
type globalFlags struct {
	databaseID string
	baseURL    string
	apiKey     string
	apiSecret  string
	configPath string
	debug      bool
	json       bool
}

// NewRootCommand creates the onyx command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "onyx",
		Short:         "Onyx database CLI",
		Long:          "Query, change and stream records of an Onyx database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv(config.AppFs)
			if g.debug {
				debug.Init(true)
			} else {
				debug.FromEnv()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.databaseID, "database-id", "", "database id (overrides "+config.EnvDatabaseID+")")
	pf.StringVar(&g.baseURL, "base-url", "", "API base URL (overrides "+config.EnvBaseURL+")")
	pf.StringVar(&g.apiKey, "api-key", "", "API key (overrides "+config.EnvAPIKey+")")
	pf.StringVar(&g.apiSecret, "api-secret", "", "API secret (overrides "+config.EnvAPISecret+")")
	pf.StringVar(&g.configPath, "config", "", "credentials file (overrides "+config.EnvConfigPath+")")
	pf.BoolVar(&g.debug, "debug", false, "log requests to stderr")
	pf.BoolVar(&g.json, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newInfoCommand(g),
		newInitCommand(g),
		newQueryCommand(g),
		newCountCommand(g),
		newGetCommand(g),
		newSaveCommand(g),
		newDeleteCommand(g),
		newStreamCommand(g),
		NewVersionCommand(),
	)
	return root
}

// loadDotEnv loads .env and then .env.local, which wins. Missing or
// unreadable files are ignored.
func loadDotEnv(fs afero.Fs) {
	if _, err := fs.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			debug.Debug("cannot load .env", "error", err)
		}
	}
	if _, err := fs.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			debug.Debug("cannot load .env.local", "error", err)
		}
	}
}

func printer(cmd *cobra.Command) *ui.Printer {
	return ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
