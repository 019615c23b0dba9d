// Package remote talks to the hosted congressional data service. Every call
// is a single HTTP request; nothing is retried.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golovatskygroup/billy-mcp/internal/httpcache"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	InfoPath = "/info"
	CallPath = "/api/tools/call"

	// maxErrorBody caps how much of a non-2xx body is kept for diagnostics.
	maxErrorBody = 4 << 10
)

var (
	ErrTimeout           = errors.New("request timed out")
	ErrMalformedResponse = errors.New("malformed response from server")
	ErrRemote            = errors.New("remote rejected call")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	reason := strings.TrimSpace(strings.TrimPrefix(e.Status, fmt.Sprint(e.StatusCode)))
	if reason == "" {
		reason = http.StatusText(e.StatusCode)
	}
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, reason)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, reason, e.Body)
}

// RemoteError is a call the service answered with success=false.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return ErrRemote }

// DefaultRemoteMessage is used when the service omits its error text.
const DefaultRemoteMessage = "Tool execution failed"

// ToolSummary is an entry of the service's available_tools list.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Info is the server-info document. Raw holds the body as received.
type Info struct {
	AvailableTools []ToolSummary
	Raw            json.RawMessage
}

// CallRequest is the body of POST /api/tools/call.
type CallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type callResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// HTTPClient defaults to a client with no overall timeout.
	HTTPClient *http.Client
	// Timeout bounds each request. Zero means none.
	Timeout time.Duration
	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64
	Cache     httpcache.Config
	Logger    *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
	newID   func() string

	info singleflight.Group
}

// New creates a client for the service at opts.BaseURL.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	// Wrap a copy so a shared client is left untouched.
	cp := *hc
	cp.Transport = httpcache.NewTransport(hc.Transport, opts.Cache)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    &cp,
		timeout: opts.Timeout,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Info fetches GET /info. Concurrent callers share one request.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	ch := c.info.DoChan(InfoPath, func() (any, error) {
		return c.fetchInfo(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Info), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetchInfo(ctx context.Context) (*Info, error) {
	body, err := c.do(ctx, InfoPath, nil)
	if err != nil {
		return nil, err
	}
	if !isObject(body) {
		return nil, fmt.Errorf("%w: server info is not a JSON object", ErrMalformedResponse)
	}
	var doc struct {
		AvailableTools []ToolSummary `json:"available_tools"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &Info{AvailableTools: doc.AvailableTools, Raw: json.RawMessage(body)}, nil
}

// CallTool posts one tool invocation and returns the service's result
// verbatim. A success=false answer is returned as *RemoteError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := c.do(ctx, CallPath, CallRequest{Tool: name, Arguments: args})
	if err != nil {
		return nil, err
	}

	if !isObject(body) {
		return nil, fmt.Errorf("%w: tool call body is not a JSON object", ErrMalformedResponse)
	}
	var resp callResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !resp.Success {
		return nil, &RemoteError{Message: remoteMessage(resp.Error)}
	}
	if len(resp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Result, nil
}

// do sends a POST when payload is non-nil and a GET otherwise.
func (c *Client) do(ctx context.Context, path string, payload any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.classify(err)
		}
	}

	method := http.MethodGet
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	reqID := c.newID()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "remote request failed",
			"method", method, "path", path, "request_id", reqID,
			"duration", time.Since(start), "error", err)
		return nil, c.classify(err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "remote request",
		"method", method, "path", path, "request_id", reqID,
		"status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(err)
	}
	return body, nil
}

func (c *Client) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return c.timeoutError(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return c.timeoutError(err)
	}
	return err
}

func (c *Client) timeoutError(err error) error {
	if c.timeout > 0 {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTimeout, err)
}

func isObject(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) > 0 && b[0] == '{'
}

func remoteMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return DefaultRemoteMessage
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return DefaultRemoteMessage
		}
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
