package sync

import (
	"github.com/go-kit/kit/log"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
)

// Remote pulls artifacts the ledger doesn't yet know about from each
// remote into the local cache and the catalog. With lastOnly, only the
// latest version of each artifact is pulled; older versions are
// skipped with a log entry. With cleanFirst, ledger records attributed
// to the given remotes are dropped first, so everything is re-examined.
func (e *Engine) Remote(remotes []cache.Tier, lastOnly, cleanFirst bool) (*Summary, error) {
	logger := e.logger()
	led := e.Catalog.Ledger()
	sum := &Summary{}

	if len(remotes) == 0 {
		remotes = e.Stack.Remotes()
	}

	if cleanFirst {
		for _, r := range remotes {
			if err := led.DeleteBySource(r.SourceID(), identity.KindBundle, identity.KindPartition); err != nil {
				e.Catalog.Rollback()
				return nil, err
			}
		}
		if err := e.Catalog.Commit(); err != nil {
			return nil, err
		}
	}

	for _, remote := range remotes {
		src := remote.SourceID()

		listed, err := remote.List()
		if err != nil {
			logger.Log("remote", src, "listing", "failed", "err", err)
			continue
		}
		logger.Log("syncing", src, "keys", len(listed))

		recs, err := led.BySource(src, identity.KindBundle, identity.KindPartition)
		if err != nil {
			return sum, err
		}
		known := map[string]bool{}
		for _, rec := range recs {
			known[rec.Path] = true
		}

		var keep map[string]bool
		if lastOnly {
			keep = latestVersions(listed, logger)
		}

		for _, key := range listed {
			if known[key] {
				continue
			}
			if lastOnly && !keep[key] {
				logger.Log("remote", src, "skip", "old version", "key", key)
				continue
			}

			path, _, err := e.Stack.Get(key, nil)
			if err != nil {
				logger.Log("remote", src, "key", key, "fetching", "failed", "err", err)
				sum.add(Outcome{Key: key, Err: err})
				continue
			}

			b, err := e.Bundles.Acquire(path)
			if err != nil {
				if depot.IsNotABundle(err) {
					logger.Log("remote", src, "key", key, "err", "cache key exists, but isn't a valid bundle")
				} else {
					logger.Log("remote", src, "key", key, "err", err)
				}
				sum.add(Outcome{Key: key, Err: err})
				continue
			}
			ident := b.Identity()
			err = e.install(b, src, catalog.LocationRemote, catalog.StateInstalled, false)
			e.Bundles.Release(b)
			if err != nil {
				logger.Log("remote", src, "key", key, "installing", "failed", "err", err)
				sum.add(Outcome{Ref: ident.VID, Key: key, Err: err})
				continue
			}
			sum.add(Outcome{Ref: ident.VID, Key: key, Action: "installed"})
		}
	}

	e.invalidate("", "bundle_index")
	e.invalidate("", "library_info")
	if err := e.index().Commit(); err != nil {
		logger.Log("search", "commit", "err", err)
	}
	return sum, nil
}

// latestVersions reduces a remote listing to the maximum-version key
// per artifact. Keys without a parseable version suffix are logged and
// excluded from the comparison: they are never selected as latest.
func latestVersions(keys []string, logger log.Logger) map[string]bool {
	type best struct {
		key identity.Key
		raw string
	}
	latest := map[string]best{}
	for _, raw := range keys {
		k, err := identity.ParseKey(raw)
		if err != nil {
			logger.Log("key", raw, "err", "failed to find version numbers")
			continue
		}
		group := k.StripVersion()
		cur, ok := latest[group]
		if !ok || k.Version.GreaterThan(&cur.key.Version) {
			latest[group] = best{key: k, raw: raw}
		}
	}
	keep := make(map[string]bool, len(latest))
	for _, b := range latest {
		keep[b.raw] = true
	}
	return keep
}
