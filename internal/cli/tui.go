// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Launches the full-screen chat view (the default command).

package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ui/chat"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

func runTUI(cmd *cobra.Command, opts *globalOptions) error {
	if !IsTTY() || !isTerminalWriter(cmd.OutOrStdout()) {
		return fmt.Errorf("the chat view needs a terminal; use \"rigchat ask\" or \"rigchat repl\"")
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bridge := chat.NewBridge()
	a, err := newApp(ctx, cfg, appOptions{Listener: bridge, Confirmer: bridge})
	if err != nil {
		return err
	}
	defer a.Close()

	autoLoad, _ := cmd.Flags().GetBool("auto-load")
	view := chat.New(ctx, a.session, styles.NewTheme(cfg.UI.Theme), chat.Options{
		Markdown: cfg.UI.Markdown,
		AutoLoad: autoLoad,
	})

	program := tea.NewProgram(view, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(program.Send)
	defer bridge.Attach(nil)

	if path, err := opts.resolveConfigPath(); err == nil {
		err := config.Watch(ctx, path, a.logger.Named("config"), func(next *config.Config) {
			program.Send(chat.AppearanceMsg{Theme: next.UI.Theme, Markdown: next.UI.Markdown})
		})
		if err != nil {
			a.logger.Debug("config watch disabled", zap.Error(err))
		}
	}

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
		return cmd.Context().Err()
	}
	return err
}
