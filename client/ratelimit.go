package client

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/servicelab/svc-acceptor/metrics"
	"github.com/servicelab/svc-acceptor/types"
)

const defaultMaxTokenWait = 30 * time.Second

// tokenBucket wraps a token-bucket limiter with a bounded wait. It is owned
// exclusively by one client; ownership never crosses a worker boundary.
type tokenBucket struct {
	service string
	limiter *rate.Limiter
	maxWait time.Duration
}

func newTokenBucket(service string, p types.RateLimitPolicy) *tokenBucket {
	if !p.Enabled() {
		return nil
	}
	maxWait := p.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxTokenWait
	}
	return &tokenBucket{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(p.RefillPerSecond), p.Capacity),
		maxWait: maxWait,
	}
}

// take blocks until a token is available, the bounded wait expires, or ctx is
// cancelled. An expired wait surfaces as RateLimitError; a cancelled ctx
// surfaces as the ctx error so callers can tell the two apart.
func (b *tokenBucket) take(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.maxWait)
	defer cancel()

	if err := b.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.RecordRateLimitExceeded(b.service)
		return &RateLimitError{MaxWait: b.maxWait}
	}
	return nil
}
