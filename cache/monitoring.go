// Monitoring middleware for cache tiers.
package cache

import (
	"io"
	"strconv"
	"time"
)

type instrumentedTier struct {
	next Tier
	m    Metrics
}

// InstrumentTier wraps a tier so each operation records its duration
// and transferred byte counts.
func InstrumentTier(next Tier, m Metrics) Tier {
	return &instrumentedTier{next: next, m: m}
}

func (t *instrumentedTier) SourceID() string { return t.next.SourceID() }
func (t *instrumentedTier) Priority() int    { return t.next.Priority() }

func (t *instrumentedTier) observe(op string, start time.Time, err error) {
	t.m.RequestDuration.With(
		LabelTier, t.next.SourceID(),
		LabelOperation, op,
		LabelSuccess, strconv.FormatBool(err == nil),
	).Observe(time.Since(start).Seconds())
}

func (t *instrumentedTier) Has(key string) (res bool, err error) {
	defer func(start time.Time) { t.observe(OpHas, start, err) }(time.Now())
	return t.next.Has(key)
}

func (t *instrumentedTier) Get(key string) (io.ReadCloser, int64, error) {
	start := time.Now()
	rc, size, err := t.next.Get(key)
	t.observe(OpGet, start, err)
	if err != nil {
		return nil, 0, err
	}
	return &countingReadCloser{rc: rc, tier: t}, size, nil
}

func (t *instrumentedTier) Put(key string, r io.Reader) (n int64, err error) {
	defer func(start time.Time) {
		t.observe(OpPut, start, err)
		t.m.TransferBytes.With(LabelTier, t.next.SourceID(), LabelOperation, OpPut).Add(float64(n))
	}(time.Now())
	return t.next.Put(key, r)
}

func (t *instrumentedTier) Remove(key string) (err error) {
	defer func(start time.Time) { t.observe(OpRemove, start, err) }(time.Now())
	return t.next.Remove(key)
}

func (t *instrumentedTier) List() (keys []string, err error) {
	defer func(start time.Time) { t.observe(OpList, start, err) }(time.Now())
	return t.next.List()
}

type countingReadCloser struct {
	rc   io.ReadCloser
	tier *instrumentedTier
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 {
		c.tier.m.TransferBytes.With(
			LabelTier, c.tier.next.SourceID(),
			LabelOperation, OpGet,
		).Add(float64(n))
	}
	return n, err
}

func (c *countingReadCloser) Close() error { return c.rc.Close() }
