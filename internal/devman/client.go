// Package devman talks to the dvmn.org review tracking API.
package devman

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultURL     = "https://dvmn.org/api/long_polling/"
	DefaultTimeout = 5 * time.Second

	userAgent    = "reviewbot/1.0"
	maxErrorBody = 512
	maxBody      = 1 << 20
)

type Config struct {
	URL   string
	Token string
	// Timeout bounds a single long-poll request.
	Timeout time.Duration
	// HTTPClient is optional; its own Timeout is left alone and the request
	// is bounded through the context instead.
	HTTPClient *http.Client
}

// Client performs long-poll requests against the review endpoint.
type Client struct {
	url     string
	token   string
	timeout time.Duration
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		raw = DefaultURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("devman: invalid api url %q", cfg.URL)
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("devman: api token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{url: u.String(), token: strings.TrimSpace(cfg.Token), timeout: timeout, http: hc}, nil
}

// Poll performs one long-poll request. An unset cursor asks for results from now on.
//
// Errors: ErrTimeout, ErrConnection, *HTTPError, ErrMalformed, or the context error
// when ctx is cancelled.
func (c *Client) Poll(ctx context.Context, cursor Cursor) (Result, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return Result{}, fmt.Errorf("devman: create request: %w", err)
	}
	if cursor.IsSet() {
		q := req.URL.Query()
		q.Set("timestamp", string(cursor))
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Result{}, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Result{}, classify(ctx, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.result()
}
