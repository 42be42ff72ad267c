package portal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/usn-result-scraper/internal/metrics"
)

// requestLimiter caps outbound portal requests across all branch workers.
type requestLimiter struct {
	limiter *rate.Limiter
}

func newRequestLimiter(rps float64) *requestLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &requestLimiter{limiter: rate.NewLimiter(limit, 1)}
}

func (l *requestLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
