// Package cli wires the vertclip command line onto the pipeline.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/vertclip/internal/config"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/logging"
)

// Main runs the CLI and exits with a status derived from the error kind.
func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Execute runs one invocation and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var clipsErr *failedClipsError
	switch {
	case errors.As(err, &clipsErr):
		return 3
	case failure.Classify(err) == failure.KindInput:
		return 2
	case failure.Classify(err) == failure.KindCancelled:
		return 130
	default:
		return 1
	}
}

// commandContext carries the flags every subcommand shares.
type commandContext struct {
	configPath string
	logLevel   string
	logFormat  string
}

// loadConfig reads the config file and applies the shared logging flags.
// Validation is left to the caller so command flags can override first.
func (c *commandContext) loadConfig() (*config.Config, error) {
	cfg, _, _, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Logging.Format = c.logFormat
	}
	return cfg, nil
}

func (c *commandContext) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	}
	if cfg.Logging.File != "" {
		opts.OutputPaths = []string{cfg.Logging.File}
	}
	return logging.New(opts)
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}
	opts := &runFlags{}

	root := &cobra.Command{
		Use:           "vertclip <input.mp4>",
		Short:         "Cut vertical short-form clips from a local MP4",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVideo(cmd, cc, opts, args[0])
		},
	}

	root.PersistentFlags().StringVarP(&cc.configPath, "config", "c", "", "Configuration file path (default vertclip.toml)")
	root.PersistentFlags().StringVar(&cc.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&cc.logFormat, "log-format", "", "Log format: console or json")
	opts.register(root)

	root.AddCommand(newResumeCommand(cc))
	root.AddCommand(newStatusCommand(cc))
	root.AddCommand(newConfigCommand())
	return root
}
