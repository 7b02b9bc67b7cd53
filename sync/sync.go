// Package sync implements the three synchronization procedures:
// rebuilding the catalog from the local cache, pulling missing
// artifacts from remote caches, and pushing new artifacts to an
// upstream. Each is independently invokable and safe to re-run.
package sync

import (
	"github.com/go-kit/kit/log"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/bundle"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
	"github.com/depotproject/depot/search"
)

// Engine runs synchronization against one catalog and one cache
// stack. Batch procedures tolerate per-artifact failure: one bad
// artifact is logged and reported, never allowed to block the run.
type Engine struct {
	Catalog catalog.Catalog
	Stack   *cache.Stack
	Bundles *bundle.Registry
	Index   search.Index
	Logger  log.Logger

	// Invalidate, when set, is called after syncs to drop derived
	// caches keyed by a vid or a named aggregate.
	Invalidate func(vid, key string)
}

func (e *Engine) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}

func (e *Engine) index() search.Index {
	if e.Index == nil {
		return search.Nop{}
	}
	return e.Index
}

func (e *Engine) invalidate(vid, key string) {
	if e.Invalidate != nil {
		e.Invalidate(vid, key)
	}
}

// Outcome is the per-item result of a batch procedure.
type Outcome struct {
	Ref    string
	Key    string
	Action string
	Err    error
}

// Summary reports every item a batch procedure touched. Batch
// procedures complete with a summary even when some items failed.
type Summary struct {
	Items []Outcome
}

func (s *Summary) add(o Outcome) {
	s.Items = append(s.Items, o)
}

// Failed counts the items that did not succeed.
func (s *Summary) Failed() int {
	var n int
	for _, o := range s.Items {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// install records one opened bundle in the catalog within its own
// commit boundary: the bundle row at the given location, its partition
// rows, the bundle's ledger record, and (when withPartitionFiles) a
// ledger record per partition. A failure rolls back this artifact only.
func (e *Engine) install(b *bundle.Bundle, sourceID string, loc catalog.Location, state catalog.State, withPartitionFiles bool) error {
	ident := b.Identity()
	key := ident.CacheKey().String()

	if err := e.Catalog.InstallBundle(ident, loc); err != nil {
		if !depot.IsConflict(err) {
			e.Catalog.Rollback()
			return err
		}
		// Already installed; refresh the ledger anyway.
	}

	dgst, size, err := cache.DigestFile(b.Path())
	if err != nil {
		e.Catalog.Rollback()
		return err
	}
	led := e.Catalog.Ledger()
	if err := led.Install(catalog.Record{
		Ref:      ident.VID,
		Kind:     identity.KindBundle,
		SourceID: sourceID,
		State:    state,
		Path:     key,
		Size:     size,
		Digest:   dgst,
	}); err != nil {
		e.Catalog.Rollback()
		return err
	}

	parts, err := b.Partitions()
	if err != nil {
		e.Catalog.Rollback()
		return err
	}
	for _, p := range parts {
		if err := e.Catalog.InstallPartition(p); err != nil && !depot.IsConflict(err) {
			e.Catalog.Rollback()
			return err
		}
		if !withPartitionFiles {
			continue
		}
		rec := catalog.Record{
			Ref:      p.VID,
			Kind:     identity.KindPartition,
			SourceID: sourceID,
			State:    state,
			Path:     p.CacheKey().String(),
		}
		// Some partitions reference the file of an earlier version, so
		// there may be no file to measure.
		if pd, psize, err := cache.DigestFile(e.Stack.Path(rec.Path)); err == nil {
			rec.Digest, rec.Size = pd, psize
		}
		if err := led.Install(rec); err != nil {
			e.Catalog.Rollback()
			return err
		}
	}

	return e.Catalog.Commit()
}
