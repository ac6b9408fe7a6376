package remix

import "context"

// retryCtxKey is an unexported key type for storing retry counters in context.
type retryCtxKey struct{}

type policyCtxKey struct{}

// RetryCounters holds per-request retry attribution that the transport updates.
type RetryCounters struct {
	Total     int64
	Timeout   int64
	Net       int64
	Status429 int64
	Status5xx int64
}

// WithRetryCounters attaches a RetryCounters struct to the context so that the
// transport can attribute retries to this context specifically.
func WithRetryCounters(ctx context.Context, rc *RetryCounters) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, retryCtxKey{}, rc)
}

// getRetryCounters fetches the counters from context if present.
func getRetryCounters(ctx context.Context) *RetryCounters {
	if ctx == nil {
		return nil
	}
	if rc, ok := ctx.Value(retryCtxKey{}).(*RetryCounters); ok {
		return rc
	}
	return nil
}

// WithPolicy overrides the transport's attempt policy for requests made with
// the returned context.
func WithPolicy(ctx context.Context, p Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, policyCtxKey{}, p)
}

func policyFrom(ctx context.Context) (Policy, bool) {
	if ctx == nil {
		return Policy{}, false
	}
	p, ok := ctx.Value(policyCtxKey{}).(Policy)
	return p, ok
}
