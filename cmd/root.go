package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/config"
	"github.com/teemow/healthcal/internal/logging"
	"github.com/teemow/healthcal/internal/session"
)

// version will be set by main
var version = "dev"

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	envFile    string
	debug      bool
	logFormat  string
	storage    string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "healthcal",
		Short: "Keeps medical appointments and medication reminders in Google Calendar",
		Long: `healthcal authorizes against Google Calendar once, stores the token locally
and keeps it fresh, and reads or writes calendar events for a personal
health assistant.

It can run as:
  - A command-line tool (auth, events, meds, docs, chat, account)
  - An MCP (Model Context Protocol) server for AI assistants (serve)
  - An HTTP API next to the health backend (serve --transport http)`,
		SilenceUsage: true,
		Version:      version,
	}
	rootCmd.SetVersionTemplate(`{{printf "healthcal version %s\n" .Version}}`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/healthcal/config.toml)")
	pf.StringVar(&flags.envFile, "env-file", "", "dotenv file read before the environment (default: .env)")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.logFormat, "log-format", config.LogFormatText, "Log format: text or json")
	pf.StringVar(&flags.storage, "storage", "", "Token storage backend: memory, file, sqlite, postgres or badger")

	rootCmd.AddCommand(newAuthCmd(flags))
	rootCmd.AddCommand(newEventsCmd(flags))
	rootCmd.AddCommand(newMedsCmd(flags))
	rootCmd.AddCommand(newDocsCmd(flags))
	rootCmd.AddCommand(newChatCmd(flags))
	rootCmd.AddCommand(newAccountCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute is the main entry point for the CLI application
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers the config file, dotenv, environment and the flags
// that were set explicitly on cmd.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    flags.configPath,
		EnvFile: flags.envFile,
	})
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("debug") {
		cfg.Log.Debug = flags.debug
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if cmd.Flags().Changed("storage") {
		cfg.Storage.Type = flags.storage
	}
	return cfg, nil
}

// newLogger writes to stderr so stdout stays free for command output and
// the stdio MCP transport.
func newLogger(cfg config.Config) *slog.Logger {
	return logging.NewLogger(os.Stderr, cfg.Log.Format, cfg.Log.Debug)
}

// openSession loads the configuration and wires a session for a one-shot
// command. The caller closes the session.
func openSession(ctx context.Context, cmd *cobra.Command, flags *globalFlags, opts ...session.Option) (*session.Session, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	opts = append([]session.Option{
		session.WithLogger(logging.NewSlogAdapter(logger)),
		session.WithOutput(cmd.ErrOrStderr()),
	}, opts...)
	sess, err := session.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "healthcal version %s\n", version)
		},
	}
}
