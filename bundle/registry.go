package bundle

import (
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Registry is an arena of open bundle handles keyed by canonical
// absolute path. Re-acquiring a path reuses the open handle; the
// handle is closed when the last holder releases it, not at the whim
// of a garbage collector.
type Registry struct {
	mu   sync.Mutex
	open map[string]*entry
}

type entry struct {
	b    *Bundle
	refs int
}

func NewRegistry() *Registry {
	return &Registry{open: map[string]*entry{}}
}

// Acquire opens (or reuses) the bundle at path. Every successful
// Acquire must be paired with a Release.
func (r *Registry) Acquire(path string) (*Bundle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "canonicalizing %s", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.open[abs]; ok {
		e.refs++
		return e.b, nil
	}

	b, err := Open(abs)
	if err != nil {
		return nil, err
	}
	r.open[abs] = &entry{b: b, refs: 1}
	return b, nil
}

// Release drops one reference to the bundle, closing the handle when
// the count reaches zero.
func (r *Registry) Release(b *Bundle) error {
	if b == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.open[b.path]
	if !ok {
		// Not ours; close directly.
		return b.Close()
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(r.open, b.path)
	return e.b.Close()
}

// Len reports how many distinct bundles are currently open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
