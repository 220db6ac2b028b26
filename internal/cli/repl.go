// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Line-based interactive chat for rigchat CLI.
//
// Command: repl
// Short:   Line-based chat with input history
//
// Interactive Commands:
//   /help               Show available commands
//   /load, /unload      Load or release the model
//   /reset              Clear the conversation
//   /history            Print the conversation
//   /settings [reset]   Print or reset the generation settings
//   /set KEY VALUE      Change one setting
//   /clear-cache        Remove cached model files
//   /quit, /exit        Leave the repl
//   Ctrl+C              Stop the current answer (exits at the prompt)
//   Ctrl+D              Exit
//
// Input history is kept in <data_dir>/repl_history.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/generation"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
)

const replPrompt = "rigchat> "

const replHelp = `Commands:
  /load, /unload      Load or release the model
  /reset              Clear the conversation
  /history            Print the conversation
  /settings [reset]   Print or reset the generation settings
  /set KEY VALUE      Change one setting
  /clear-cache        Remove cached model files
  /quit               Leave the repl`

func newReplCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Line-based chat with input history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(cmd, global)
		},
	}
}

func runRepl(cmd *cobra.Command, global *globalOptions) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	historyFile := filepath.Join(cfg.DataDir(), "repl_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, historyFile)

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	printer := &streamPrinter{out: out, stream: true}
	if isTerminalWriter(errOut) {
		printer.status = errOut
	}

	// Ctrl+C stops an answer instead of ending the repl, so runs use a
	// context detached from the command's signal handling.
	ctx := context.WithoutCancel(cmd.Context())
	a, err := newApp(ctx, cfg, appOptions{
		Listener:  printer,
		Confirmer: &lineConfirmer{out: errOut, line: line},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	r := &repl{
		ctx:     ctx,
		session: a.session,
		line:    line,
		printer: printer,
		out:     out,
		errOut:  errOut,
		interrupts: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}

	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("rigchat"), dimStyle.Render(cfg.Engine.PrimaryModel+" · /help for commands"))
	r.load()
	return r.loop()
}

// saveHistory writes the liner history with owner-only permissions.
func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

// =============================================================================
// REPL LOOP
// =============================================================================

type repl struct {
	ctx     context.Context
	session *session.Session
	line    lineReader
	printer *streamPrinter
	out     io.Writer
	errOut  io.Writer

	// interrupts derives the context of one answer; it is cancelled on
	// Ctrl+C. Nil uses ctx as is.
	interrupts func(context.Context) (context.Context, context.CancelFunc)
}

// loop reads lines until EOF, Ctrl+C at the prompt or /quit.
func (r *repl) loop() error {
	for {
		input, err := r.line.Prompt(replPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(input); quit {
				return nil
			}
			continue
		}
		r.submit(input)
	}
}

func (r *repl) submit(text string) {
	ctx, stop := r.ctx, context.CancelFunc(func() {})
	if r.interrupts != nil {
		ctx, stop = r.interrupts(r.ctx)
	}
	defer stop()

	r.printer.begin()
	result, err := r.session.Submit(ctx, text)
	if err != nil {
		r.fail(err)
		return
	}
	r.printer.finish(result.Text)

	switch result.Outcome {
	case generation.Completed:
		fmt.Fprintln(r.errOut, dimStyle.Render(result.Diagnostics()))
	case generation.Cancelled:
		fmt.Fprintln(r.errOut, warningStyle.Render("["+session.StatusAborted+"]"))
	case generation.Failed:
		r.fail(errors.New(result.ErrMessage()))
	}
}

// command runs a slash command and reports whether to quit.
func (r *repl) command(input string) bool {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/help", "/h":
		fmt.Fprintln(r.out, replHelp)
	case "/load":
		r.load()
	case "/unload":
		if err := r.session.UnloadModel(); err != nil {
			r.fail(err)
			return false
		}
		r.info(session.StatusUnloaded)
	case "/reset":
		if err := r.session.ResetConversation(); err != nil {
			r.fail(err)
			return false
		}
		r.info(session.StatusConversationReset)
	case "/history":
		writeTranscript(r.out, r.session.Transcript())
	case "/settings":
		settings := r.session.Settings()
		if strings.EqualFold(rest, "reset") {
			settings = r.session.ResetSettings()
		}
		fmt.Fprintln(r.out, formatSettingsLine(settings))
	case "/set":
		key, value, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(value) == "" {
			r.fail(errors.New("usage: /set KEY VALUE"))
			return false
		}
		var in storage.SettingsInput
		if err := in.Set(key, strings.TrimSpace(value)); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintln(r.out, formatSettingsLine(r.session.SaveSettings(in)))
	case "/clear-cache":
		n := r.session.ClearCache()
		r.info(fmt.Sprintf("%s (%d removed)", session.StatusCacheCleared, n))
	case "/quit", "/q", "/exit":
		return true
	default:
		r.fail(fmt.Errorf("unknown command %s (try /help)", name))
	}
	return false
}

func (r *repl) load() {
	if err := r.session.LoadModel(r.ctx); err != nil {
		r.fail(loadFailure(err))
		return
	}
	r.info(r.session.Status())
}

func (r *repl) info(msg string) {
	fmt.Fprintln(r.errOut, successStyle.Render(msg))
}

func (r *repl) fail(err error) {
	fmt.Fprintf(r.errOut, "%s %v\n", errorStyle.Render("[Error]"), err)
}

// =============================================================================
// FORMATTING
// =============================================================================

// writeTranscript prints turns as "Role: content" blocks.
func writeTranscript(w io.Writer, turns []model.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, dimStyle.Render("(no messages)"))
		return
	}
	for _, turn := range turns {
		label := turn.Role.DisplayName()
		if turn.Annotation {
			label = "Error"
		}
		fmt.Fprintf(w, "%s: %s\n", promptStyle.Render(label), turn.Content)
	}
}

func formatSettingsLine(s model.Settings) string {
	return fmt.Sprintf("temperature=%g top_p=%g top_k=%d repetition_penalty=%g max_new_tokens=%d",
		s.Temperature, s.TopP, s.TopK, s.RepetitionPenalty, s.MaxNewTokens)
}
