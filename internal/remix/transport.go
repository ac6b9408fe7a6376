package remix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Policy controls how many attempts a request gets and how long each may take.
// Attempts is the total number of tries, not the number of retries after the
// first one.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultPolicy mirrors the service defaults: three attempts, two seconds
// apart, sixty seconds per attempt.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second, Timeout: 60 * time.Second}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// TransportOptions configures the retrying, paced transport.
type TransportOptions struct {
	Policy  Policy
	Clock   Clock
	Metrics *Metrics

	// Limit paces attempts against the local service. Zero means unlimited.
	Limit rate.Limit
	Burst int
}

// RetryingTransport wraps a base RoundTripper with pacing, per-attempt
// timeouts and retries. Bodies are read inside the attempt so a response
// survives the attempt's context being cancelled.
type RetryingTransport struct {
	Base    http.RoundTripper
	Opts    TransportOptions
	limiter *rate.Limiter
}

func NewRetryingTransport(opts TransportOptions) *RetryingTransport {
	lim := opts.Limit
	burst := opts.Burst
	if lim <= 0 {
		lim = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RetryingTransport{Opts: opts, limiter: rate.NewLimiter(lim, burst)}
}

func (t *RetryingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryingTransport) clock() Clock {
	if t.Opts.Clock != nil {
		return t.Opts.Clock
	}
	return realClock{}
}

// failure classifies why an attempt did not produce a usable response.
type failure int

const (
	failNone failure = iota
	failTimeout
	failConnection
	failStatus
	failFatal
)

// ensureGetBody guarantees the request body is replayable across retries.
func ensureGetBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	_ = req.Body.Close()
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	return nil
}

func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := ensureGetBody(req); err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	ctx := req.Context()
	pol := t.Opts.Policy
	if p, ok := policyFrom(ctx); ok {
		pol = p
	}
	pol = pol.normalized()
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRequest(req.Method)
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	for attempt := 1; attempt <= pol.Attempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, kind, err := t.attempt(req, pol.Timeout)
		if kind == failNone {
			return resp, nil
		}
		lastResp, lastErr = resp, err
		if kind == failFatal || ctx.Err() != nil {
			break
		}
		if attempt == pol.Attempts {
			break
		}

		wait := pol.Delay
		if kind == failConnection {
			wait *= 2
		}
		t.record(ctx, kind, resp)
		if wait > 0 {
			t.clock().Sleep(wait)
			if t.Opts.Metrics != nil {
				t.Opts.Metrics.AddBackoff(wait)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if lastResp != nil {
		return lastResp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("max retries exceeded")
	}
	return nil, lastErr
}

// attempt performs one try with its own timeout. A returned response always
// carries a fully buffered body.
func (t *RetryingTransport) attempt(req *http.Request, timeout time.Duration) (*http.Response, failure, error) {
	ctx := req.Context()
	var cancel context.CancelFunc = func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	r := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, failFatal, err
		}
		r.Body = body
	}

	resp, err := t.base().RoundTrip(r)
	if err != nil {
		return nil, classifyErr(req.Context(), err), err
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, classifyErr(req.Context(), err), err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncStatus(resp.StatusCode)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, failNone, nil
	case shouldRetryStatus(resp.StatusCode):
		return resp, failStatus, nil
	default:
		// client errors are final: the request itself is wrong
		return resp, failFatal, nil
	}
}

func (t *RetryingTransport) record(ctx context.Context, kind failure, resp *http.Response) {
	if t.Opts.Metrics != nil {
		t.Opts.Metrics.IncRetry()
	}
	rc := getRetryCounters(ctx)
	if rc == nil {
		return
	}
	rc.Total++
	switch kind {
	case failTimeout:
		rc.Timeout++
	case failConnection:
		rc.Net++
	case failStatus:
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			rc.Status429++
		} else {
			rc.Status5xx++
		}
	}
}

// classifyErr decides whether a transport error is worth another attempt.
// Cancellation of the caller's context is final.
func classifyErr(parent context.Context, err error) failure {
	if parent.Err() != nil {
		return failFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return failConnection
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return failConnection
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return failConnection
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return failTimeout
	}
	if strings.Contains(msg, "connection") || strings.Contains(msg, "refused") {
		return failConnection
	}
	return failFatal
}

func shouldRetryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
