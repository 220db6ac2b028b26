// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/rigchat/internal/engine"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeNotRunning
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeModelNotFound
	ErrTypeConnection
	ErrTypeInvalidResponse
	// ErrTypeServer carries the server's own error text unchanged.
	ErrTypeServer
)

// Sentinel errors for easy checking.
var (
	ErrNotRunning    = &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrCanceled      = &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: engine.ErrCanceled}
	ErrModelNotFound = &ClientError{Type: ErrTypeModelNotFound, Message: "model not found"}
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434)
	BaseURL string

	// Timeout for short non-streaming requests (default: 30s)
	Timeout time.Duration

	// KeepAlive is how long the server keeps a loaded model (default: "30m")
	KeepAlive string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   "http://localhost:11434",
		Timeout:   30 * time.Second,
		KeepAlive: "30m",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API.
//
// The Client is safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	// streamClient has no timeout; streams end through their context.
	streamClient *http.Client
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.KeepAlive == "" {
		config.KeepAlive = defaults.KeepAlive
	}

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do sends a JSON request and returns the response once the status is OK.
// The caller closes the body.
func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp, path)
	}
	return resp, nil
}

// classifyTransportError maps a failed round trip to a sentinel. Caller
// cancellation is kept distinct from timeouts.
func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return ErrCanceled
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return ErrTimeout
	default:
		return &ClientError{Type: ErrTypeNotRunning, Message: "Ollama is not running", Cause: err}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// statusError turns a non-200 response into a ClientError. The server's
// {"error": "..."} text is surfaced verbatim.
func statusError(resp *http.Response, path string) error {
	var ollamaErr OllamaError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &ollamaErr) == nil && ollamaErr.Error != "" {
		if resp.StatusCode == http.StatusNotFound {
			return &ClientError{Type: ErrTypeModelNotFound, Message: ollamaErr.Error}
		}
		return &ClientError{Type: ErrTypeServer, Message: ollamaErr.Error}
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrModelNotFound
	}
	return &ClientError{
		Type:    ErrTypeInvalidResponse,
		Message: fmt.Sprintf("%s request failed: %s", path, resp.Status),
	}
}

func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable.
func (c *Client) CheckRunning(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// Version returns the server version.
func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	var v VersionResponse
	if err := decodeJSON(resp.Body, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves all locally available models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	var result ListModelsResponse
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Show retrieves the details and prompt template of a local model.
func (c *Client) Show(ctx context.Context, model string) (*ShowModelResponse, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/show", ShowModelRequest{Model: model})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	var result ShowModelResponse
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Pull downloads model, reporting each progress line to fn.
func (c *Client) Pull(ctx context.Context, model string, fn func(PullResponse)) error {
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/pull", PullRequest{Model: model, Stream: true})
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	return readStream(ctx, resp.Body, func(line PullResponse) (bool, error) {
		if line.Error != "" {
			return true, &ClientError{Type: ErrTypeServer, Message: line.Error}
		}
		if fn != nil {
			fn(line)
		}
		return line.Status == "success", nil
	})
}

// Load asks the server to load model into memory without generating.
func (c *Client) Load(ctx context.Context, model string, opts *Options) error {
	req := GenerateRequest{Model: model, Stream: false, Options: opts, KeepAlive: c.config.KeepAlive}
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	var result GenerateResponse
	if err := decodeJSON(resp.Body, &result); err != nil {
		return err
	}
	if result.Error != "" {
		return &ClientError{Type: ErrTypeServer, Message: result.Error}
	}
	return nil
}

// Unload asks the server to free model immediately.
func (c *Client) Unload(ctx context.Context, model string) error {
	req := GenerateRequest{Model: model, Stream: false, KeepAlive: 0}
	resp, err := c.do(ctx, c.httpClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return err
	}
	drainAndClose(resp.Body)
	return nil
}

// =============================================================================
// STREAMING GENERATION
// =============================================================================

// StreamCallback is called for each line of a generation stream, in order.
type StreamCallback func(chunk GenerateResponse)

// GenerateStream sends a raw streaming generation request and calls fn for
// every line. It returns the final line on success.
func (c *Client) GenerateStream(ctx context.Context, model, prompt string, opts *Options, fn StreamCallback) (*GenerateResponse, error) {
	req := GenerateRequest{
		Model:     model,
		Prompt:    prompt,
		Stream:    true,
		Raw:       true,
		Options:   opts,
		KeepAlive: c.config.KeepAlive,
	}
	resp, err := c.do(ctx, c.streamClient, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	var last GenerateResponse
	err = readStream(ctx, resp.Body, func(chunk GenerateResponse) (bool, error) {
		if chunk.Error != "" {
			return true, &ClientError{Type: ErrTypeServer, Message: chunk.Error}
		}
		if fn != nil {
			fn(chunk)
		}
		last = chunk
		return chunk.Done, nil
	})
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == t
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	return hasType(err, ErrTypeModelNotFound)
}

// IsNotRunning checks if an error indicates Ollama is not running.
func IsNotRunning(err error) bool {
	return hasType(err, ErrTypeNotRunning)
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return hasType(err, ErrTypeTimeout)
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(r, 64*1024))
	r.Close()
}
