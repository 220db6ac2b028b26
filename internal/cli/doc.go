// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package cli implements the rigchat command line.

Running rigchat without arguments starts the terminal chat view. The other
commands reuse the same session and stores:

	rigchat                       Start the chat view
	rigchat ask "question"        Ask one question and print the answer
	rigchat repl                  Line-based chat with history
	rigchat settings show|set|reset
	rigchat history show|export|reset
	rigchat cache clear
	rigchat config path|show|get|set
	rigchat doctor                Run health checks

Global flags select the config file, data directory, model and log level.
Every command loads ~/.rigchat/config.toml (or --config) first; flags
override the file and environment.
*/
package cli
