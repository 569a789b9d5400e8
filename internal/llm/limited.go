package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout           = 60 * time.Second
	defaultRequestsPerSecond = 2.0
	defaultMaxInFlight       = 2
)

// Limited paces calls to an inner client, caps concurrent calls, and bounds
// each call with a timeout.
type Limited struct {
	inner   Client
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	timeout time.Duration
}

var _ Client = (*Limited)(nil)

// NewLimited wraps inner using the pacing settings in cfg. Zero values
// select the defaults.
func NewLimited(inner Client, cfg Config) *Limited {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	inFlight := cfg.MaxInFlight
	if inFlight <= 0 {
		inFlight = defaultMaxInFlight
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		sem:     semaphore.NewWeighted(inFlight),
		timeout: timeout,
	}
}

// Provider returns the inner client's provider.
func (l *Limited) Provider() string { return l.inner.Provider() }

// GenerateJSON implements Client.
func (l *Limited) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, l.waitError(err)
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, l.waitError(err)
	}

	out, err := l.inner.GenerateJSON(ctx, system, user)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, &Error{Kind: KindTimeout, Provider: l.inner.Provider(), Err: err}
	}
	return out, err
}

func (l *Limited) waitError(err error) error {
	return &Error{Kind: KindTimeout, Provider: l.inner.Provider(), Err: fmt.Errorf("waiting for rate limiter: %w", err)}
}

// Scrubber removes secrets from text before it leaves the process.
type Scrubber interface {
	Redact(content string) string
}

// Redacting scrubs both prompts before handing them to the inner client.
type Redacting struct {
	inner    Client
	scrubber Scrubber
}

var _ Client = (*Redacting)(nil)

// NewRedacting wraps inner with scrubber.
func NewRedacting(inner Client, scrubber Scrubber) *Redacting {
	return &Redacting{inner: inner, scrubber: scrubber}
}

// Provider returns the inner client's provider.
func (r *Redacting) Provider() string { return r.inner.Provider() }

// GenerateJSON implements Client.
func (r *Redacting) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	return r.inner.GenerateJSON(ctx, r.scrubber.Redact(system), r.scrubber.Redact(user))
}
