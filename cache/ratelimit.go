package cache

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type rateLimitedTier struct {
	next    Tier
	limiter *rate.Limiter
}

// RateLimitTier wraps a remote tier so its requests are throttled to
// rps requests per second. Transfers themselves are not limited, only
// the rate at which operations start.
func RateLimitTier(next Tier, rps float64) Tier {
	return &rateLimitedTier{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (t *rateLimitedTier) SourceID() string { return t.next.SourceID() }
func (t *rateLimitedTier) Priority() int    { return t.next.Priority() }

func (t *rateLimitedTier) Has(key string) (bool, error) {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return false, err
	}
	return t.next.Has(key)
}

func (t *rateLimitedTier) Get(key string) (io.ReadCloser, int64, error) {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return nil, 0, err
	}
	return t.next.Get(key)
}

func (t *rateLimitedTier) Put(key string, r io.Reader) (int64, error) {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return 0, err
	}
	return t.next.Put(key, r)
}

func (t *rateLimitedTier) Remove(key string) error {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return err
	}
	return t.next.Remove(key)
}

func (t *rateLimitedTier) List() ([]string, error) {
	if err := t.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}
	return t.next.List()
}
