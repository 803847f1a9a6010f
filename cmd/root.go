// Package cmd holds the face-attendance command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"face-attendance/config"
	"face-attendance/internal/logger"
)

// rootOptions is shared by every sub-command; cfg and log are filled in by PersistentPreRunE
type rootOptions struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        *logger.Logger
}

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	rootCmd := &cobra.Command{
		Use:           "face-attendance",
		Short:         "Face recognition attendance pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		serveCommand(opts),
		sweepCommand(opts),
		reportCommand(opts),
		replayCommand(opts),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return opts.initialize()
	}

	return rootCmd
}

// initialize loads configuration and the global logger before any sub-command runs
func (o *rootOptions) initialize() error {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
	}

	cfg, err := config.Load(o.v)
	if err != nil {
		return err
	}
	o.cfg = cfg

	if err := logger.InitGlobal(loggerConfig(cfg.Log)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.log = logger.GetGlobal()
	return nil
}

func loggerConfig(c config.LogConfig) logger.Config {
	return logger.Config{
		Level:    c.Level,
		JSON:     c.JSON,
		FilePath: c.File,
		Rotation: logger.RotationConfig{
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		},
	}
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, opts *rootOptions) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to a config file (default: config.yaml in . or $HOME/.face-attendance)")
	flags.String("log-level", opts.v.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("database", opts.v.GetString("database.path"), "Path to the SQLite attendance database")
	flags.String("timezone", opts.v.GetString("pipeline.timezone"), "IANA timezone shift dates are computed in")
	flags.String("directory-file", opts.v.GetString("directory.file"), "YAML employee directory used instead of PocketBase")

	bindings := map[string]string{
		"log.level":         "log-level",
		"database.path":     "database",
		"pipeline.timezone": "timezone",
		"directory.file":    "directory-file",
	}
	for key, flag := range bindings {
		if err := opts.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// Execute runs the root command until it returns or the process is signalled
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := RootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
