package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starnet/starwatch/internal/model"
)

// Fetcher defines the backend operations the sync engine and controller need.
// This interface is implemented by *Client and can be used for testing.
type Fetcher interface {
	Fetch(ctx context.Context, ep model.Endpoint, params url.Values) Result
	PostRow(ctx context.Context, ep model.Endpoint, row map[string]any) error
}

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Client talks to the spreadsheet-backed HTTP API.
type Client struct {
	baseURL   *url.URL
	secret    string
	http      *http.Client
	userAgent string
}

const defaultUserAgent = "starwatch/0.1"

// NewClient builds a Client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewClient(baseURL, secret string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	return &Client{
		baseURL:   base,
		secret:    secret,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// Fetch issues GET <base>?key=..&sheet=<ep>[&params]. The body is returned
// raw; it is only checked to be well-formed JSON.
func (c *Client) Fetch(ctx context.Context, ep model.Endpoint, params url.Values) Result {
	id := uuid.NewString()
	if c == nil {
		return failed(id, fmt.Errorf("client is nil"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sheetURL(ep, params), nil)
	if err != nil {
		return failed(id, fmt.Errorf("create request: %w", err))
	}
	c.setHeaders(req, id)

	resp, err := c.http.Do(req)
	if err != nil {
		if isCancelled(ctx, err) {
			return cancelled(id)
		}
		return failed(id, fmt.Errorf("execute request: %w", stripURL(err)))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isCancelled(ctx, err) {
			return cancelled(id)
		}
		return failed(id, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(id, &HTTPError{
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       snippet(body),
		})
	}
	if !json.Valid(body) {
		return failed(id, ErrInvalidJSON)
	}
	return ok(id, body)
}

// PostRow sends {"row": row} to the endpoint's sheet. A non-2xx status or a
// JSON reply carrying a truthy "error" field is returned as an error; any
// other reply, including a non-JSON one, counts as success.
func (c *Client) PostRow(ctx context.Context, ep model.Endpoint, row map[string]any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	payload, err := json.Marshal(map[string]any{"row": row})
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sheetURL(ep, nil), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, uuid.NewString())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", stripURL(err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       snippet(body),
		}
	}
	var reply struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil
	}
	if msg := errorMessage(reply.Error); msg != "" {
		return &BackendError{Message: msg}
	}
	return nil
}

func (c *Client) sheetURL(ep model.Endpoint, params url.Values) string {
	u := *c.baseURL
	values := u.Query()
	values.Set("key", c.secret)
	values.Set("sheet", string(ep))
	for k, vs := range params {
		if len(vs) > 0 {
			values.Set(k, vs[0])
		}
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
}

// stripURL drops the request URL from transport errors. The URL carries the
// shared secret, and these errors end up in logs and the snapshot.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err
}

// isCancelled distinguishes caller cancellation from deadlines and transport
// failures. Only explicit cancellation is silent.
func isCancelled(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func errorMessage(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "backend reported an error"
		}
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "backend reported an error"
		}
		return string(b)
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base url %q must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api base url %q has no host", raw)
	}
	u.Fragment = ""
	return u, nil
}
