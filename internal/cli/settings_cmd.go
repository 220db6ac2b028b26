// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// settings_cmd.go - Generation settings commands.
//
// Command: settings [subcommand]
//
// Subcommands:
//   show [--format toml|json|yaml]   Print the current settings
//   set KEY VALUE [KEY VALUE...]     Change settings
//   reset                            Restore the defaults
//
// Invalid values never fail: each falls back to its default, as in the
// chat view.

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/storage"
)

func newSettingsCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change generation settings",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				text, err := st.settingsStore().Export(format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "toml", "output format (toml, json, yaml)")

	set := &cobra.Command{
		Use:   "set KEY VALUE [KEY VALUE...]",
		Short: "Change settings",
		Long: "Change settings. Keys: " + strings.Join(storage.SettingsKeys, ", ") + `.

Out-of-range or unparsable values are replaced by the default.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected KEY VALUE pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var in storage.SettingsInput
			for i := 0; i < len(args); i += 2 {
				if err := in.Set(args[i], args[i+1]); err != nil {
					return err
				}
			}
			return withState(global, func(st *state) error {
				store := st.settingsStore()
				store.Save(in)
				text, err := store.Export("toml")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("Settings saved"))
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				st.settingsStore().Reset()
				fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("Settings reset to defaults"))
				return nil
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

// withState loads config, opens the store, runs fn and closes the store.
func withState(global *globalOptions, fn func(st *state) error) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	st, err := openState(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
