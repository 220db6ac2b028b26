// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and global flags for rigchat CLI.
//
// Global Flags:
//   --config PATH       Config file (default ~/.rigchat/config.toml)
//   --data-dir DIR      Data directory (overrides storage.data_dir)
//   -m, --model NAME    Primary model (overrides engine.primary_model)
//   --log-level LEVEL   debug, info, warn or error
//   -v, --verbose       Shorthand for --log-level debug
//
// Exit Codes:
//   0   Success
//   1   Command failed
//   130 Interrupted

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
)

// Version is the rigchat version, set at build time.
var Version = "dev"

// ExitInterrupted is the exit code after Ctrl+C.
const ExitInterrupted = 130

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	model      string
	logLevel   string
	verbose    bool
}

// loadConfig loads the config file and applies flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path, err := o.resolveConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, err
	}

	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	if o.model != "" {
		cfg.Engine.PrimaryModel = o.model
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) resolveConfigPath() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// NewRootCommand builds the rigchat command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Chat with a local language model",
		Long: `rigchat streams answers from a locally hosted language model.

Run without arguments to start the interactive chat view. The model is
loaded on demand (ctrl+l or /load) and only when a GPU is present, unless
engine.require_accelerator is switched off.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.rigchat/config.toml)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory")
	flags.StringVarP(&opts.model, "model", "m", "", "primary model")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.Flags().Bool("auto-load", false, "load the model on start")

	root.AddCommand(
		newAskCommand(opts),
		newReplCommand(opts),
		newSettingsCommand(opts),
		newHistoryCommand(opts),
		newCacheCommand(opts),
		newConfigCommand(opts),
		newDoctorCommand(opts),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewRootCommand(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return ExitInterrupted
	default:
		fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("Error:"), err)
		return 1
	}
}
