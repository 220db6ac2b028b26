// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

// maxLineSize bounds one NDJSON line of a stream.
const maxLineSize = 1024 * 1024

// readStream decodes a newline-delimited JSON stream line by line and hands
// each value to fn until fn reports done, the stream ends or ctx is
// cancelled. Blank and malformed lines are skipped.
func readStream[T any](ctx context.Context, r io.Reader, fn func(T) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return contextError(ctx)
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var value T
		if err := json.Unmarshal(line, &value); err != nil {
			continue
		}

		done, err := fn(value)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return contextError(ctx)
		}
		if errors.Is(err, context.Canceled) {
			return ErrCanceled
		}
		return &ClientError{Type: ErrTypeConnection, Message: "stream interrupted", Cause: err}
	}
	if ctx.Err() != nil {
		return contextError(ctx)
	}
	return nil
}

// contextError maps a finished context to its sentinel.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCanceled
}
