// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command for rigchat CLI.
//
// Command: ask [question...]
// Short:   Ask one question and print the answer
//
// Examples:
//   rigchat ask "What is a mutex?"
//   echo "Summarize: ..." | rigchat ask
//   rigchat ask --continue "And in Go?"     Continue the saved conversation
//   rigchat ask --raw "..." > answer.md     Stream plain text
//
// Flags:
//   --continue          Use and extend the saved conversation
//   --raw               Stream plain text even on a terminal
//   -y, --yes           Load the fallback model without asking
//   --stats             Print TTFT and tok/s to stderr
//
// The answer streams as it is generated. On a terminal with ui.markdown
// enabled it is rendered as markdown once complete.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/generation"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

type askOptions struct {
	continueChat bool
	raw          bool
	yes          bool
	stats        bool
}

func newAskCommand(global *globalOptions) *cobra.Command {
	o := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and print the answer.

The question is read from stdin when no arguments are given. The
conversation is not saved unless --continue is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, global, o, args)
		},
	}
	cmd.Flags().BoolVar(&o.continueChat, "continue", false, "use and extend the saved conversation")
	cmd.Flags().BoolVar(&o.raw, "raw", false, "stream plain text even on a terminal")
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "load the fallback model without asking")
	cmd.Flags().BoolVar(&o.stats, "stats", false, "print TTFT and tok/s to stderr")
	return cmd
}

func runAsk(cmd *cobra.Command, global *globalOptions, o *askOptions, args []string) error {
	question, err := readQuestion(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	render := cfg.UI.Markdown && !o.raw && isTerminalWriter(out)

	printer := &streamPrinter{out: out, stream: !render}
	if isTerminalWriter(errOut) {
		printer.status = errOut
	}
	confirmer := &lineConfirmer{out: errOut}
	if o.yes {
		yes := true
		confirmer.assume = &yes
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{
		Listener:  printer,
		Confirmer: confirmer,
		Ephemeral: !o.continueChat,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	var style string
	if render {
		style = styles.NewTheme(cfg.UI.Theme).GlamourStyle()
	}
	return ask(ctx, a.session, printer, question, askOutput{
		out:           out,
		errOut:        errOut,
		markdownStyle: style,
		width:         TerminalWidth(out),
		stats:         o.stats,
	})
}

// readQuestion joins args, or reads stdin when there are none.
func readQuestion(in io.Reader, args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" || question == "-" {
		data, err := io.ReadAll(io.LimitReader(in, 1<<20))
		if err != nil {
			return "", fmt.Errorf("failed to read question: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", errors.New("no question given")
	}
	return question, nil
}

// askOutput says where and how the answer is printed.
type askOutput struct {
	out    io.Writer
	errOut io.Writer
	// markdownStyle renders the final answer with glamour when set.
	markdownStyle string
	width         int
	stats         bool
}

// ask loads the model, submits question and prints the answer.
func ask(ctx context.Context, s *session.Session, printer *streamPrinter, question string, o askOutput) error {
	if err := s.LoadModel(ctx); err != nil {
		return loadFailure(err)
	}

	printer.begin()
	result, err := s.Submit(ctx, question)
	if err != nil {
		return err
	}
	printer.finish(result.Text)

	if o.markdownStyle != "" && result.Text != "" {
		fmt.Fprint(o.out, renderMarkdown(result.Text, o.markdownStyle, o.width))
	}
	if o.stats && result.Outcome == generation.Completed {
		fmt.Fprintln(o.errOut, dimStyle.Render(result.Diagnostics()))
	}

	switch result.Outcome {
	case generation.Cancelled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.New(session.StatusAborted)
	case generation.Failed:
		return fmt.Errorf("%s: %s", session.StatusGenerationError, result.ErrMessage())
	}
	return nil
}

// loadFailure explains a failed LoadModel.
func loadFailure(err error) error {
	if errors.Is(err, session.ErrNoAccelerator) {
		return fmt.Errorf("%w (set engine.require_accelerator = false to run on the CPU)", err)
	}
	return fmt.Errorf("failed to load model: %w", err)
}

// renderMarkdown renders text with glamour, returning text unchanged when
// rendering fails.
func renderMarkdown(text, style string, width int) string {
	if width > 4 {
		width -= 2
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
