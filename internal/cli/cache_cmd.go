// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cache_cmd.go - Model cache commands.
//
// Command: cache clear
//
// Removes the model cache store and every runtime cache entry
// (transformers, onnx) under cache.dirs. Failures are skipped.

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCacheCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached model files",
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached model files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withState(global, func(st *state) error {
				clearer := st.cacheClearer()
				removed := clearer.Clear()
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d removed from %s)\n",
					successStyle.Render("Cache cleared"), removed, strings.Join(clearer.Dirs, ", "))
				return nil
			})
		},
	}

	cmd.AddCommand(clearCmd)
	return cmd
}
