// Package api is the client for the poll service's REST contract. Every
// response is decoded into an explicit schema and validated; malformed
// bodies surface as *DecodeError rather than defaulted values.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pollctl/internal/client/session"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Session
	now     func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock replaces time.Now for schedule checks and correlation tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a client for the service rooted at baseURL (for
// example http://127.0.0.1:8000/api). sess may be nil for anonymous use.
func NewClient(baseURL string, sess *session.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		session: sess,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Session() *session.Session {
	return c.session
}

type authMode int

const (
	authNone authMode = iota
	// authPrivileged refreshes once and attaches the access token.
	authPrivileged
	// authStored attaches the stored access token without refreshing.
	authStored
)

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
	auth   authMode
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// send performs the request. Only transport failures are returned as
// errors; any HTTP status is a response.
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to encode request: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.session != nil {
		var header string
		switch r.auth {
		case authPrivileged:
			header = c.session.AuthorizedHeader(ctx, c)
		case authStored:
			if access := c.session.AccessToken(); access != "" {
				header = "Bearer " + access
			}
		}
		if header != "" {
			req.Header.Set("Authorization", header)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{Op: r.op, Err: err}
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// failure converts a non-2xx response into the generic error for op. 401
// becomes an AuthError; callers map the statuses they own first.
func failure(op string, resp *response, fallback string) error {
	eb := parseErrorBody(resp.body, fallback)
	if resp.status == http.StatusUnauthorized {
		return &AuthError{Message: eb.message, Err: ErrUnauthorized}
	}
	msg := eb.message
	if len(eb.fields) > 0 {
		msg += ": " + formatFields(eb.fields)
	}
	return &APIError{Op: op, Status: resp.status, Code: eb.code, Message: msg}
}

type validator interface {
	Validate() error
}

// decode unmarshals a 2xx body and validates it.
func decode(op string, body []byte, out validator) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	if err := out.Validate(); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}
