// Package rpcclient talks JSON-RPC 2.0 to a running klingpay daemon.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrRateLimited is matched by the RPCError returned when the daemon
// throttles the client.
var ErrRateLimited = errors.New("rate limited")

// codeRateLimited mirrors the daemon's rate limit error code.
const codeRateLimited = -32005

// DefaultTimeout covers a daemon call that walks several upstream
// endpoints before answering.
const DefaultTimeout = 30 * time.Second

// Client posts JSON-RPC requests to a single daemon endpoint.
type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
	retries   int
	backoff   time.Duration
	nextID    atomic.Int64
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout of a single attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimitRetries makes the client retry calls the daemon rejected
// with its rate limit code. The n-th retry waits n*backoff.
func WithRateLimitRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = max(n, 0)
		c.backoff = backoff
	}
}

// New creates a client for the given endpoint URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: "klingpay-rpcclient",
		backoff:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

type response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	ID     int64           `json:"id"`
}

// RPCError is an error object returned by the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is match ErrRateLimited.
func (e *RPCError) Is(target error) bool {
	return target == ErrRateLimited && e.Code == codeRateLimited
}

// HTTPError is returned when the daemon answers outside JSON-RPC, such as
// a 403 from the IP allow-list.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Call invokes method and decodes the result into result, which may be nil
// to discard it.
func (c *Client) Call(method string, params, result any) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext is Call with a context. Rate limited calls are retried when
// the client was built with WithRateLimitRetries.
func (c *Client) CallContext(ctx context.Context, method string, params, result any) error {
	for attempt := 0; ; attempt++ {
		err := c.do(ctx, method, params, result)
		if err == nil || attempt >= c.retries || !errors.Is(err, ErrRateLimited) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * c.backoff):
		}
	}
}

func (c *Client) do(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return decodeResponse(data, result)
}

// decodeResponse unwraps a JSON-RPC envelope into result.
func decodeResponse(data []byte, result any) error {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
