// Package supabase implements the identity, data and blob gateways against a
// hosted Supabase project (GoTrue, PostgREST and Storage over HTTP).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recreo/gateway"
)

// Client is a Supabase REST client.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     logrus.FieldLogger
}

// New creates a client for the project at cfg.URL.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		log:        log.WithField("component", "supabase"),
	}, nil
}

// WithAccessToken returns a copy of the client that authenticates requests as
// the signed-in user instead of the anonymous key.
func (c *Client) WithAccessToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// PublicObjectBase is the address prefix of public storage objects.
func (c *Client) PublicObjectBase() string {
	return c.baseURL + "/storage/v1/object/public"
}

// Error is a Supabase error response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	Hint       string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the response to a gateway error kind.
func (e *Error) Unwrap() error {
	switch {
	case e.Code == "23505":
		return gateway.ErrConflict
	case e.Code == "PGRST116":
		return gateway.ErrNotFound
	case e.Code == "42501":
		return gateway.ErrForbidden
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return gateway.ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return gateway.ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return gateway.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return gateway.ErrConflict
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return gateway.ErrUnavailable
	case e.StatusCode >= 400:
		return gateway.ErrInvalid
	default:
		return nil
	}
}

func parseError(body []byte, statusCode int) error {
	var errResp struct {
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Details          string `json:"details"`
		Hint             string `json:"hint"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &Error{StatusCode: statusCode, Code: "unknown", Message: strings.TrimSpace(string(body))}
	}

	msg := errResp.Message
	for _, alt := range []string{errResp.Msg, errResp.ErrorDescription, errResp.Error} {
		if msg == "" {
			msg = alt
		}
	}
	// GoTrue reports the HTTP status as a numeric code; only PostgREST codes are kept.
	code, _ := errResp.Code.(string)
	if code == "" && errResp.Error != "" && errResp.Error != msg {
		code = errResp.Error
	}

	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    msg,
		Details:    errResp.Details,
		Hint:       errResp.Hint,
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	bearer := c.apiKey
	if c.token != "" {
		bearer = c.token
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, url string, body []byte, header http.Header) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("supabase: create request: %w", err)
	}
	c.setHeaders(req)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("supabase: %s %s: %w", method, req.URL.Path, ctxErr)
		}
		return nil, fmt.Errorf("supabase: %s %s: %w: %v", method, req.URL.Path, gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase: read response: %w: %v", gateway.ErrUnavailable, err)
	}

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("supabase request")

	if resp.StatusCode >= 400 {
		return nil, parseError(respBody, resp.StatusCode)
	}
	return respBody, nil
}

func jsonHeader(extra ...string) http.Header {
	h := http.Header{"Content-Type": []string{"application/json"}}
	for i := 0; i+1 < len(extra); i += 2 {
		h.Set(extra[i], extra[i+1])
	}
	return h
}
