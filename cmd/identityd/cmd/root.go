package cmd

import (
	"fmt"
	"os"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

var (
	cfg    *config.Config
	logger *glog.BaseLogger
)

var rootCmd = &cobra.Command{
	Use:   "identityd",
	Short: "Identity service for local and federated sign in",
	Long: `identityd issues bearer tokens for local credentials and for Google and
GitHub logins, and manages the role assignments carried in those tokens.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		applyFlagOverrides(cmd)
		logger = newLogger(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: IDENTITY_DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: IDENTITY_SERVER_ADDR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (env: IDENTITY_LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: pretty, console or json (env: IDENTITY_LOG_FORMAT)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug responses and logging (env: IDENTITY_DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.DatabaseURL, _ = flags.GetString("db-url")
	}
	if flags.Changed("server-addr") {
		cfg.ServerAddr, _ = flags.GetString("server-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("debug") {
		cfg.Debug, _ = flags.GetBool("debug")
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
}

func newLogger(cfg *config.Config) *glog.BaseLogger {
	format := glog.WithLoggerTypePretty()
	switch cfg.LogFormat {
	case "json":
		format = glog.WithLoggerTypeJSON()
	case "console":
		format = glog.WithLoggerTypeConsole()
	}

	return glog.NewLogger(
		format,
		glog.WithLevel(cfg.LogLevel),
		glog.WithName("identityd"),
		glog.WithAddSource(cfg.Debug),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}
