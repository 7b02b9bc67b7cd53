package sync

import (
	"io"
	"os"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
)

// Push actions.
const (
	ActionHas    = "has"    // upstream already had it; no bytes moved
	ActionPushed = "pushed" // bytes were transferred
	ActionPush   = "push"   // dry run: a transfer would occur
)

// PushResult describes what a push did (or, under dryRun, would do).
type PushResult struct {
	Ref    string
	Key    string
	Action string
	Size   int64
	Took   time.Duration
}

// Push uploads the artifact behind ref to the upstream tier and marks
// its ledger record pushed. Only records in state new are pushable;
// anything else is a Conflict error (Reset is the way back). If the
// upstream already has the key, the record is marked pushed without
// transferring any bytes. With dryRun, the action that would occur is
// reported and nothing is mutated.
//
// Unlike the batch procedures, a single-ref push is all-or-nothing:
// any failure propagates to the caller.
func (e *Engine) Push(upstream cache.Tier, ref string, dryRun bool, progress cache.Progress) (*PushResult, error) {
	ident, err := e.Catalog.ResolveOne(ref, nil)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, depot.NotFoundError("cannot push: %q does not resolve", ref)
	}

	target := *ident
	kind := identity.KindBundle
	if ident.Partition != nil {
		target = *ident.Partition
		kind = identity.KindPartition
	}

	led := e.Catalog.Ledger()
	rec, err := led.Get(target.VID, kind)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, depot.NotFoundError("no ledger record for %s", target.VID)
	}
	if rec.State != catalog.StateNew {
		return nil, depot.ConflictError("cannot push %s: ledger state is %s, want %s",
			target.VID, rec.State, catalog.StateNew)
	}

	start := time.Now()
	res := &PushResult{Ref: target.VID, Key: rec.Path}

	ok, err := upstream.Has(rec.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "checking %s on %s", rec.Path, upstream.SourceID())
	}
	if ok {
		res.Action = ActionHas
		if !dryRun {
			if err := led.SetState(target.VID, kind, catalog.StatePushed); err != nil {
				return nil, err
			}
			if err := e.Catalog.Commit(); err != nil {
				return nil, err
			}
		}
		res.Took = time.Since(start)
		return res, nil
	}

	if dryRun {
		res.Action = ActionPush
		res.Size = rec.Size
		return res, nil
	}

	f, err := os.Open(e.Stack.Path(rec.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "opening local artifact %s", rec.Path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	digester := digest.SHA256.Digester()
	r := io.TeeReader(cache.NewProgressReader(f, info.Size(), progress), digester.Hash())
	n, err := upstream.Put(rec.Path, r)
	if err != nil {
		return nil, errors.Wrapf(err, "pushing %s to %s", rec.Path, upstream.SourceID())
	}
	if rec.Digest != "" && digester.Digest() != rec.Digest {
		return nil, errors.Errorf("digest mismatch pushing %s: ledger has %s, sent %s",
			rec.Path, rec.Digest, digester.Digest())
	}

	if err := led.SetState(target.VID, kind, catalog.StatePushed); err != nil {
		return nil, err
	}
	if err := e.Catalog.Commit(); err != nil {
		return nil, err
	}

	res.Action = ActionPushed
	res.Size = n
	res.Took = time.Since(start)
	return res, nil
}

// PushAll pushes every ledger record in state new. By default the
// first failure aborts the batch; with keepGoing, per-ref failures are
// isolated and reported in the summary.
func (e *Engine) PushAll(upstream cache.Tier, dryRun, keepGoing bool, progress cache.Progress) (*Summary, error) {
	recs, err := e.Catalog.Ledger().ByState(catalog.StateNew)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, rec := range recs {
		res, err := e.Push(upstream, rec.Ref, dryRun, progress)
		if err != nil {
			sum.add(Outcome{Ref: rec.Ref, Key: rec.Path, Err: err})
			if !keepGoing {
				return sum, err
			}
			continue
		}
		sum.add(Outcome{Ref: rec.Ref, Key: res.Key, Action: res.Action})
	}
	return sum, nil
}
