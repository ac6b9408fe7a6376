package remix

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

	"golang.org/x/time/rate"

	"remix-sync/internal/config"
	"remix-sync/internal/infra/logx"
)

// MediaType is sent as Accept on every request and as Content-Type when a
// JSON body is attached.
const MediaType = "application/lightspeed.remix.service+json; version=1.0"

// Options configures a Client.
type Options struct {
	BaseURL string
	// Prefix is prepended to control-API paths built through Stage. The
	// ingestion endpoint lives outside it.
	Prefix  string
	Policy  Policy
	Clock   Clock
	Metrics *Metrics
	// Base is the underlying RoundTripper; nil means http.DefaultTransport.
	Base  http.RoundTripper
	Limit rate.Limit
	Burst int
}

// OptionsFromSettings maps a settings snapshot onto client options.
func OptionsFromSettings(s config.Settings) Options {
	return Options{
		BaseURL: s.APIBaseURL,
		Prefix:  s.StagecraftPrefix,
		Policy: Policy{
			Attempts: s.Retries,
			Delay:    s.RetryDelay(),
			Timeout:  s.RequestTimeout(),
		},
	}
}

type Client struct {
	http    *http.Client
	baseURL string
	prefix  string
	policy  Policy
	metrics *Metrics
}

func New(opts Options) *Client {
	pol := opts.Policy
	if pol == (Policy{}) {
		pol = DefaultPolicy()
	}
	m := opts.Metrics
	if m == nil {
		m = NewMetrics()
	}
	tr := NewRetryingTransport(TransportOptions{
		Policy:  pol,
		Clock:   opts.Clock,
		Metrics: m,
		Limit:   opts.Limit,
		Burst:   opts.Burst,
	})
	tr.Base = opts.Base
	return &Client{
		// timeouts are enforced per attempt by the transport
		http:    &http.Client{Transport: tr},
		baseURL: opts.BaseURL,
		prefix:  strings.TrimRight(opts.Prefix, "/"),
		policy:  pol,
		metrics: m,
	}
}

// Metrics returns the collector shared by every request of this client.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Stage returns path under the control-API prefix.
func (c *Client) Stage(path string) string {
	return c.prefix + "/" + strings.TrimLeft(path, "/")
}

// RequestOptions tunes a single call. Zero values fall back to the client's
// policy.
type RequestOptions struct {
	Headers map[string]string
	JSON    any
	Params  url.Values
	Retries int
	Delay   time.Duration
	Timeout time.Duration
	// NoDelay forces a zero delay between attempts, which a zero Delay cannot
	// express.
	NoDelay bool
}

// Result is the outcome of every Request. Success is true exactly when the
// final response carried a 2xx status.
type Result struct {
	Success    bool
	StatusCode int
	// Data is the decoded JSON body, or the raw text when the body is not
	// JSON, or nil when there was no body.
	Data  any
	Error string

	body []byte
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v any) error {
	if len(bytes.TrimSpace(r.body)) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.body, v)
}

// Body returns the raw response body.
func (r Result) Body() []byte { return r.body }

// Err converts a failed result into an *Error. It returns nil on success.
func (r Result) Err(op string) error {
	if r.Success {
		return nil
	}
	return &Error{Op: op, StatusCode: r.StatusCode, Message: r.Error}
}

// Error is a failed control-API call.
type Error struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Rejected reports whether the service refused the request itself (4xx other
// than 429), as opposed to being unreachable or failing internally.
func (e *Error) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

func (c *Client) policyFor(o RequestOptions) Policy {
	p := c.policy
	if o.Retries > 0 {
		p.Attempts = o.Retries
	}
	if o.Delay > 0 {
		p.Delay = o.Delay
	}
	if o.NoDelay {
		p.Delay = 0
	}
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	return p
}

func (c *Client) buildURL(endpoint string, params url.Values) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	u, err := url.Parse(base + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Request sends method to endpoint (joined onto the base URL) and never fails
// with an error: every failure mode is described by the returned Result.
func (c *Client) Request(ctx context.Context, method, endpoint string, o RequestOptions) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	full, err := c.buildURL(endpoint, o.Params)
	if err != nil {
		logx.Errorf("remix: url construction for %q: %v", endpoint, err)
		return Result{Error: "URL construction error: " + err.Error()}
	}

	var body io.Reader
	if o.JSON != nil {
		data, err := json.Marshal(o.JSON)
		if err != nil {
			return Result{Error: "encode request body: " + err.Error()}
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(WithPolicy(ctx, c.policyFor(o)), method, full, body)
	if err != nil {
		return Result{Error: "build request: " + err.Error()}
	}
	req.Header.Set("Accept", MediaType)
	if o.JSON != nil {
		req.Header.Set("Content-Type", MediaType)
	}
	for k, v := range o.Headers {
		req.Header.Set(k, v)
	}

	logx.Debugf("remix: %s %s", method, full)
	res, err := c.http.Do(req)
	if err != nil {
		msg := "request failed: " + unwrapURLError(err).Error()
		logx.Warnf("remix: %s %s: %s", method, endpoint, msg)
		return Result{Error: msg}
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Result{StatusCode: res.StatusCode, Error: "read response: " + err.Error()}
	}

	out := Result{StatusCode: res.StatusCode, body: raw, Data: decodeBody(raw)}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		out.Success = true
		return out
	}
	out.Error = fmt.Sprintf("API error (status %d): %s", res.StatusCode, errorDetail(raw))
	logx.Warnf("remix: %s %s: %s", method, endpoint, out.Error)
	return out
}

func decodeBody(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return string(raw)
}

// errorDetail prefers the service's "detail" field and falls back to the body.
func errorDetail(raw []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "empty response"
	}
	return s
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err
	}
	return err
}
