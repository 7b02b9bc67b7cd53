// Package mem implements an in-memory cache tier, used as a stand-in
// remote in tests.
package mem

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
)

type Tier struct {
	source   string
	priority int

	mu   sync.Mutex
	data map[string][]byte

	// GetCount tracks Get calls per key, so tests can assert that a
	// read-through hit never contacts the remote again.
	GetCount map[string]int
	// FailGet, when set, makes Get for that key return the error.
	FailGet map[string]error
}

var _ cache.Tier = &Tier{}

func New(source string, priority int) *Tier {
	return &Tier{
		source:   source,
		priority: priority,
		data:     map[string][]byte{},
		GetCount: map[string]int{},
		FailGet:  map[string]error{},
	}
}

func (t *Tier) SourceID() string { return t.source }
func (t *Tier) Priority() int    { return t.priority }

// Set seeds the tier with an artifact.
func (t *Tier) Set(key string, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key] = append([]byte(nil), value...)
}

func (t *Tier) Has(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[key]
	return ok, nil
}

func (t *Tier) Get(key string) (io.ReadCloser, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.GetCount[key]++
	if err := t.FailGet[key]; err != nil {
		return nil, 0, err
	}
	v, ok := t.data[key]
	if !ok {
		return nil, 0, depot.NotFoundError("%s not in %s", key, t.source)
	}
	return io.NopCloser(bytes.NewReader(v)), int64(len(v)), nil
}

func (t *Tier) Put(key string, r io.Reader) (int64, error) {
	v, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key] = v
	return int64(len(v)), nil
}

func (t *Tier) Remove(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.data[key]; !ok {
		return depot.NotFoundError("%s not in %s", key, t.source)
	}
	delete(t.data, key)
	return nil
}

func (t *Tier) List() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
