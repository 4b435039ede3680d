package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseSize caps how much of an upstream body is read.
const maxResponseSize = 8 << 20

// ErrResponseTooLarge is returned when a successful upstream body exceeds
// maxResponseSize. A cut-off body is never handed to callers.
var ErrResponseTooLarge = errors.New("upstream response too large")

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	URL        string // Redacted.
	StatusCode int
	Body       string // Truncated.
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client performs JSON requests against upstream services.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient wraps httpClient. A nil client gets a default with a 30s
// overall timeout; per-attempt deadlines come from the request context.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: httpClient, userAgent: "klingpay/0.1"}
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.do(ctx, http.MethodGet, url, header, nil)
	if err != nil {
		return err
	}
	return decode(url, body, out)
}

// PostJSON encodes in as the request body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, url, withJSON(header), payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(url, body, out)
}

// PostRaw posts a JSON payload and returns the raw response body.
func (c *Client) PostRaw(ctx context.Context, url string, header http.Header, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, withJSON(header), payload)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, Redact(url), unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", Redact(url), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:        Redact(url),
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 256),
		}
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%s: %w (over %d bytes)", Redact(url), ErrResponseTooLarge, maxResponseSize)
	}
	return body, nil
}

func decode(url string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", Redact(url), err)
	}
	return nil
}

func withJSON(header http.Header) http.Header {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	return h
}

// unwrapURLError drops the *url.Error wrapper, whose message would repeat
// the unredacted URL.
func unwrapURLError(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
