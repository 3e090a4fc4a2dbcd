package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests to one provider within a requests-per-minute
// budget. After a 429 with Retry-After every caller waits out the pause.
type RateLimiter struct {
	bucket *rate.Limiter
	rpm    int

	mu       sync.Mutex
	resumeAt time.Time
	last429  time.Time
	served   int64
}

// RateLimiterStatus is a snapshot of a limiter.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	TokensLimit     int           `json:"tokens_limit"`
	PausedFor       time.Duration `json:"paused_for,omitempty"`
	TotalConsumed   int64         `json:"total_consumed"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter allows requestsPerMinute, bursting up to a full minute's
// worth. Non-positive values mean 60.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		bucket: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		rpm:    requestsPerMinute,
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if pause := r.pause(); pause > 0 {
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if err := r.bucket.Wait(ctx); err != nil {
		// rate.Limiter reports a deadline it cannot meet before ctx expires.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	r.mu.Lock()
	r.served++
	r.mu.Unlock()
	return nil
}

func (r *RateLimiter) pause() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Until(r.resumeAt)
}

// Record429 notes a rate-limit response and extends the pause by retryAfter.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last429 = time.Now()
	if until := r.last429.Add(retryAfter); retryAfter > 0 && until.After(r.resumeAt) {
		r.resumeAt = until
	}
}

func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimiterStatus{
		TokensAvailable: max(int(r.bucket.Tokens()), 0),
		TokensLimit:     r.rpm,
		PausedFor:       max(time.Until(r.resumeAt), 0),
		TotalConsumed:   r.served,
		Last429Time:     r.last429,
	}
}
