// Package client talks to a flashjig server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/flashjig/flashjig/checks"
	"github.com/flashjig/flashjig/model"
	"github.com/flashjig/flashjig/server"
	"github.com/flashjig/flashjig/supervisor"
)

// ErrTruncated is returned when an event stream ends without all_done.
var ErrTruncated = errors.New("event stream ended before all_done")

const maxEventSize = 1 << 20

type Client struct {
	logger zerolog.Logger
	base   string
	http   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func New(logger zerolog.Logger, baseURL string, opts ...Option) *Client {
	c := &Client{
		logger: logger,
		base:   strings.TrimRight(baseURL, "/"),
		http:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream starts a run and calls fn for every event until all_done. Cancelling
// ctx closes the connection, which cancels the run on the server.
func (c *Client) Stream(ctx context.Context, fn func(model.Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/flash-progress", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", server.ContentTypeNDJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	sse := strings.HasPrefix(resp.Header.Get("Content-Type"), server.ContentTypeSSE)
	return Decode(resp.Body, sse, fn)
}

// Decode reads events from r in NDJSON or SSE framing and calls fn for each.
// It returns nil after all_done and ErrTruncated if r ends before it.
func Decode(r io.Reader, sse bool, fn func(model.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	for sc.Scan() {
		line := sc.Bytes()
		if sse {
			data, ok := bytes.CutPrefix(line, []byte("data:"))
			if !ok {
				continue
			}
			line = bytes.TrimSpace(data)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var ev model.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("invalid event %q: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.IsTerminal() {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return ErrTruncated
}

// Kill asks the server to kill the active run.
func (c *Client) Kill(ctx context.Context) (server.KillResponse, error) {
	var out server.KillResponse
	err := c.do(ctx, http.MethodPost, "/kill-process", nil, &out)
	return out, err
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return err
	}
	if out["status"] != "ok" {
		return fmt.Errorf("server unhealthy: %s", out["message"])
	}
	return nil
}

// Status returns the server's supervisor status.
func (c *Client) Status(ctx context.Context) (supervisor.Status, error) {
	var out supervisor.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// RequiredChecks returns the server's required-check selection.
func (c *Client) RequiredChecks(ctx context.Context) (checks.Config, error) {
	var out checks.Config
	err := c.do(ctx, http.MethodGet, "/required-checks", nil, &out)
	return out, err
}

// SetChecks replaces the selection and returns the result.
func (c *Client) SetChecks(ctx context.Context, cfg checks.Config) (checks.Config, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out checks.Config
	err = c.do(ctx, http.MethodPut, "/required-checks", bytes.NewReader(body), &out)
	return out, err
}

// SetCheck sets whether one check is required.
func (c *Client) SetCheck(ctx context.Context, name string, required bool) error {
	body, err := json.Marshal(server.CheckRequest{Required: required})
	if err != nil {
		return err
	}
	var out server.CheckResponse
	return c.do(ctx, http.MethodPut, "/required-checks/"+url.PathEscape(name), bytes.NewReader(body), &out)
}

// ToggleCheck flips one check and returns whether it is now required.
func (c *Client) ToggleCheck(ctx context.Context, name string) (bool, error) {
	var out server.CheckResponse
	err := c.do(ctx, http.MethodPost, "/required-checks/"+url.PathEscape(name)+"/toggle", nil, &out)
	return out.Required, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("url", req.URL.String()).Msg("Calling server")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: invalid response: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
}
