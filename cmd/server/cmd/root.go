package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siteflow/server/internal/config"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the server.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	serveCmd := newServeCmd(opts)

	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Siteflow todo server",
		Long: `Siteflow serves a session-authenticated todo list over an RPC and a REST
surface, with email and password sign-in.

Configuration comes from environment variables, optionally layered over a
YAML or TOML file given with --config.`,
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path, .yaml or .toml; quote YAML values such as \"sqlite::memory:\" (optional, uses env vars by default)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	rootCmd.AddCommand(
		serveCmd,
		newMigrateCmd(opts),
		newUserCmd(opts),
		newCleanupCmd(opts),
		newTodoCmd(),
		newHealthcheckCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line. It is called by main.main.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}
