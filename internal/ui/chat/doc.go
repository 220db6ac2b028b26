// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the terminal chat view of rigchat.

The view is a Bubble Tea model that renders a session.Session: the
transcript, the streaming assistant reply, load progress, the status line
and the input box. It never holds conversation state of its own beyond
what it needs to draw; everything arrives as session events.

# Event flow

A Bridge is registered as the session's Listener and as the model
lifecycle's Confirmer. It forwards every session event into the running
program as an EventMsg, and turns a fallback confirmation request into a
ConfirmFallbackMsg that the view answers from a y/n overlay.

Session operations that emit events (load, submit, reset, settings) run
inside tea.Cmds. Calling them from Update directly would block, because
Program.Send waits for the event loop that is running Update.

# Keys

	enter     send the input, or run a /command
	esc       stop the current generation
	ctrl+l    load the model
	pgup/pgdn scroll the transcript
	ctrl+c    quit

Commands: /load, /unload, /stop, /reset, /clear-cache, /set <key> <value>,
/settings (or /settings reset), /help, /quit.
*/
package chat
