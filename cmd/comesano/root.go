package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/local/comesano/internal/config"
	"github.com/local/comesano/internal/countdown"
	"github.com/local/comesano/internal/dispatcher"
	"github.com/local/comesano/internal/logger"
)

// commandContext carries configuration and seams shared by subcommands.
type commandContext struct {
	envFile  string
	logLevel string
	cfg      config.Config

	newClient func(config.ProvidersConfig) dispatcher.Inferrer
	newTicker func(time.Duration) countdown.Ticker // nil uses a wall-clock ticker
}

func newCommandContext() *commandContext {
	return &commandContext{newClient: dispatcher.FromConfig}
}

func (c *commandContext) load(cmd *cobra.Command) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	c.cfg = config.FromEnv()
	if c.logLevel != "" {
		c.cfg.Logging.Level = c.logLevel
	}
	opts := logger.FromConfig(c.cfg)
	// stdout is reserved for results
	opts.Console = cmd.ErrOrStderr()
	opts.File = ""
	return logger.Init(opts)
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "comesano",
		Short:         "Estimate nutrition from meal photos",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", ".env", "Optional .env file with provider credentials")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newProvidersCommand(ctx))

	return rootCmd
}
