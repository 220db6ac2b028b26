// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation commands.
//
// Command: history [subcommand]
//
// Subcommands:
//   show [--json]       Print the saved conversation
//   export [-f FORMAT] [-o FILE]
//                       Write the conversation as markdown, json or html
//   reset               Clear the saved conversation

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/util"
)

func newHistoryCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the saved conversation",
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				turns := st.conversationStore().Turns()
				if !asJSON {
					writeTranscript(cmd.OutOrStdout(), turns)
					return nil
				}
				data, err := json.MarshalIndent(turns, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode history: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				if err := st.conversationStore().Reset(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("Conversation reset"))
				return nil
			})
		},
	}

	cmd.AddCommand(show, newHistoryExportCommand(global), reset)
	return cmd
}

type exportOptions struct {
	format     string
	output     string
	theme      string
	noMetadata bool
	noErrors   bool
}

func newHistoryExportCommand(global *globalOptions) *cobra.Command {
	var o exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the saved conversation",
		Long: `Export the saved conversation as markdown, json or html.

Without --output the document is written to stdout. When --output names a
directory a file name such as conversation_<model>_<time>.md is chosen.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				settings := st.settingsStore().Current()
				transcript := &export.Transcript{
					Model:    st.cfg.Engine.PrimaryModel,
					Exported: time.Now(),
					Settings: &settings,
					Turns:    st.conversationStore().Turns(),
				}
				return runExport(cmd, transcript, o, st.cfg.UI.Theme)
			})
		},
	}
	cmd.Flags().StringVarP(&o.format, "format", "f", "markdown", "markdown, json or html")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "output file or directory (default stdout)")
	cmd.Flags().StringVar(&o.theme, "theme", "", "html theme: dark or light (default from ui.theme)")
	cmd.Flags().BoolVar(&o.noMetadata, "no-metadata", false, "omit the model, date and settings header")
	cmd.Flags().BoolVar(&o.noErrors, "no-errors", false, "omit failed-generation annotations")
	return cmd
}

func runExport(cmd *cobra.Command, transcript *export.Transcript, o exportOptions, uiTheme string) error {
	theme := o.theme
	if theme == "" {
		theme = uiTheme
	}
	exporter, err := export.New(o.format, &export.Options{
		IncludeMetadata: !o.noMetadata,
		IncludeErrors:   !o.noErrors,
		Theme:           theme,
	})
	if err != nil {
		return err
	}
	data, err := exporter.Export(transcript)
	if err != nil {
		return err
	}

	if o.output == "" || o.output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	path := o.output
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, export.FileName(transcript, exporter))
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", successStyle.Render("Exported to"), path)
	return nil
}
