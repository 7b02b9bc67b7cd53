// Package library is the public facade over the catalog, the cache
// stack and the sync engine. Collaborators construct one Library with
// explicit dependencies and use it for everything: resolving
// references, fetching artifacts, installing new ones, and running
// synchronization.
package library

import (
	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/kit/log"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/bundle"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
	"github.com/depotproject/depot/metacache"
	"github.com/depotproject/depot/search"
	depsync "github.com/depotproject/depot/sync"
)

// Config carries the Library's collaborators. Catalog and Stack are
// required; everything else has a working default.
type Config struct {
	Catalog catalog.Catalog
	Stack   *cache.Stack
	Bundles *bundle.Registry
	Meta    metacache.Client
	Search  search.Index

	// Dependencies maps logical names to references, so callers can
	// ask for "geo" without knowing which dataset satisfies it.
	Dependencies map[string]string

	// DepCallback, when set, observes every dependency resolution.
	DepCallback func(name string, art *Artifact)

	Logger log.Logger
}

// Artifact is a fetched bundle or partition: the resolved identity,
// the local path its bytes live at, and the open container handle.
// Callers release it through Library.Release when done.
type Artifact struct {
	Identity identity.Identity
	Path     string
	Bundle   *bundle.Bundle
}

type Library struct {
	catalog     catalog.Catalog
	stack       *cache.Stack
	bundles     *bundle.Registry
	meta        metacache.Client
	index       search.Index
	deps        map[string]string
	depCallback func(name string, art *Artifact)
	logger      log.Logger
	engine      *depsync.Engine
}

// New builds a Library from its collaborators.
func New(cfg Config) (*Library, error) {
	if cfg.Catalog == nil {
		return nil, depot.ConfigurationError("library requires a catalog")
	}
	if cfg.Stack == nil {
		return nil, depot.ConfigurationError("library requires a cache stack")
	}
	if cfg.Bundles == nil {
		cfg.Bundles = bundle.NewRegistry()
	}
	if cfg.Search == nil {
		cfg.Search = search.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}

	l := &Library{
		catalog:     cfg.Catalog,
		stack:       cfg.Stack,
		bundles:     cfg.Bundles,
		meta:        cfg.Meta,
		index:       cfg.Search,
		deps:        cfg.Dependencies,
		depCallback: cfg.DepCallback,
		logger:      cfg.Logger,
	}
	l.engine = &depsync.Engine{
		Catalog:    cfg.Catalog,
		Stack:      cfg.Stack,
		Bundles:    cfg.Bundles,
		Index:      cfg.Search,
		Logger:     cfg.Logger,
		Invalidate: func(vid, key string) { l.MarkUpdated(vid, key) },
	}
	return l, nil
}

// Resolve maps a loose reference to an identity within the given
// scopes (default scopes when none given). Not-found is (nil, nil).
func (l *Library) Resolve(ref string, scopes ...catalog.Location) (*identity.Identity, error) {
	return l.catalog.ResolveOne(ref, scopes)
}

// Get resolves ref and materializes its artifact in the local cache,
// fetching from remotes when necessary. For a partition reference the
// owning bundle is fetched first, then the partition file itself.
func (l *Library) Get(ref string, progress cache.Progress) (*Artifact, error) {
	ident, err := l.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, depot.NotFoundError("%q does not resolve to a dataset or partition", ref)
	}

	key := ident.CacheKey().String()
	path, src, err := l.stack.Get(key, progress)
	if err != nil {
		return nil, err
	}

	b, err := l.bundles.Acquire(path)
	if err != nil {
		return nil, err
	}

	// The bundle's recorded source, before this get overwrites it:
	// partitions prefer the tier their bundle originally came from.
	prefer := src
	if prior, err := l.catalog.Ledger().Get(ident.VID, identity.KindBundle); err == nil && prior != nil && prior.SourceID != "" {
		prefer = prior.SourceID
	}

	if err := l.installLedger(ident.VID, identity.KindBundle, src, key, path); err != nil {
		l.bundles.Release(b)
		return nil, err
	}

	art := &Artifact{Identity: *ident, Path: path, Bundle: b}
	if ident.Partition == nil {
		return art, l.catalog.Commit()
	}

	part, err := l.partitionIn(b, ident.Partition.VID)
	if err != nil {
		l.bundles.Release(b)
		l.catalog.Rollback()
		return nil, err
	}
	pkey := part.CacheKey().String()
	ppath, psrc, err := l.stack.GetPreferring(pkey, prefer, progress)
	if err != nil {
		l.bundles.Release(b)
		l.catalog.Rollback()
		return nil, err
	}
	if err := l.installLedger(part.VID, identity.KindPartition, psrc, pkey, ppath); err != nil {
		l.bundles.Release(b)
		return nil, err
	}

	art.Path = ppath
	return art, l.catalog.Commit()
}

func (l *Library) installLedger(vid string, kind identity.Kind, src, key, path string) error {
	rec := catalog.Record{
		Ref:      vid,
		Kind:     kind,
		SourceID: src,
		State:    catalog.StateInstalled,
		Path:     key,
	}
	if dgst, size, err := cache.DigestFile(path); err == nil {
		rec.Digest, rec.Size = dgst, size
	}
	if err := l.catalog.Ledger().Install(rec); err != nil {
		l.catalog.Rollback()
		return err
	}
	return nil
}

func (l *Library) partitionIn(b *bundle.Bundle, vid string) (identity.Identity, error) {
	parts, err := b.Partitions()
	if err != nil {
		return identity.Identity{}, err
	}
	for _, p := range parts {
		if p.VID == vid {
			return p, nil
		}
	}
	return identity.Identity{}, depot.NotFoundError("partition %s is not in bundle %s", vid, b.Identity().VID)
}

// Release returns an artifact's container handle to the registry.
func (l *Library) Release(art *Artifact) {
	if art != nil && art.Bundle != nil {
		l.bundles.Release(art.Bundle)
		art.Bundle = nil
	}
}

// Put installs the bundle container at path into the library: catalog
// rows, a ledger record in state new, and a copy in the local cache
// tier. Installing an already-known bundle is a no-op unless force,
// which replaces the catalog rows. With withPartitions, partition
// ledger records are written too.
func (l *Library) Put(path, sourceID string, withPartitions, force bool) (*identity.Identity, error) {
	b, err := l.bundles.Acquire(path)
	if err != nil {
		return nil, err
	}
	defer l.bundles.Release(b)

	ident := b.Identity()
	key := ident.CacheKey().String()
	if sourceID == "" {
		sourceID = l.stack.Local().SourceID()
	}

	if err := l.catalog.InstallBundle(ident, catalog.LocationLibrary); err != nil {
		if !depot.IsConflict(err) {
			l.catalog.Rollback()
			return nil, err
		}
		if force {
			if err := l.catalog.RemoveBundle(ident.VID); err != nil {
				l.catalog.Rollback()
				return nil, err
			}
			if err := l.catalog.InstallBundle(ident, catalog.LocationLibrary); err != nil {
				l.catalog.Rollback()
				return nil, err
			}
		}
		// Otherwise: already installed, refresh the rest anyway.
	}

	if err := l.stack.Put(path, key, force); err != nil {
		l.catalog.Rollback()
		return nil, err
	}

	led := l.catalog.Ledger()
	dgst, size, err := cache.DigestFile(path)
	if err != nil {
		l.catalog.Rollback()
		return nil, err
	}
	if err := led.Install(catalog.Record{
		Ref:      ident.VID,
		Kind:     identity.KindBundle,
		SourceID: sourceID,
		State:    catalog.StateNew,
		Path:     key,
		Size:     size,
		Digest:   dgst,
	}); err != nil {
		l.catalog.Rollback()
		return nil, err
	}

	parts, err := b.Partitions()
	if err != nil {
		l.catalog.Rollback()
		return nil, err
	}
	for _, p := range parts {
		if err := l.catalog.InstallPartition(p); err != nil && !depot.IsConflict(err) {
			l.catalog.Rollback()
			return nil, err
		}
		if err := l.index.IndexPartition(p, force); err != nil {
			l.logger.Log("indexing", p.VID, "err", err)
		}
		if !withPartitions {
			continue
		}
		rec := catalog.Record{
			Ref:      p.VID,
			Kind:     identity.KindPartition,
			SourceID: sourceID,
			State:    catalog.StateNew,
			Path:     p.CacheKey().String(),
		}
		if pd, psize, err := cache.DigestFile(l.stack.Path(rec.Path)); err == nil {
			rec.Digest, rec.Size = pd, psize
		}
		if err := led.Install(rec); err != nil {
			l.catalog.Rollback()
			return nil, err
		}
	}

	if err := l.index.IndexDataset(ident, force); err != nil {
		l.logger.Log("indexing", ident.VID, "err", err)
	}
	if err := l.index.Commit(); err != nil {
		l.logger.Log("search", "commit", "err", err)
	}

	if err := l.catalog.Commit(); err != nil {
		return nil, err
	}
	l.MarkUpdated(ident.VID, "bundle_index", "library_info")
	return &ident, nil
}

// Remove forgets ref entirely: catalog rows, ledger records, and the
// cached files on every tier. Remote removal failures are logged, not
// fatal.
func (l *Library) Remove(ref string) error {
	ident, err := l.Resolve(ref)
	if err != nil {
		return err
	}
	if ident == nil {
		return depot.NotFoundError("cannot remove: %q does not resolve", ref)
	}

	parts, err := l.catalog.Partitions(ident.VID)
	if err != nil {
		return err
	}

	led := l.catalog.Ledger()
	if err := l.catalog.RemoveBundle(ident.VID); err != nil {
		l.catalog.Rollback()
		return err
	}
	if err := led.DeleteRef(ident.VID); err != nil {
		l.catalog.Rollback()
		return err
	}
	for _, p := range parts {
		if err := led.DeleteRef(p.VID); err != nil {
			l.catalog.Rollback()
			return err
		}
	}
	if err := l.catalog.Commit(); err != nil {
		return err
	}

	for _, p := range parts {
		if err := l.stack.Remove(p.CacheKey().String(), true); err != nil && !depot.IsNotFound(err) {
			l.logger.Log("removing", p.VID, "err", err)
		}
	}
	if err := l.stack.Remove(ident.CacheKey().String(), true); err != nil && !depot.IsNotFound(err) {
		l.logger.Log("removing", ident.VID, "err", err)
	}

	l.MarkUpdated(ident.VID, "bundle_index", "library_info")
	return nil
}

// Dep fetches the artifact behind a logical dependency name. A name
// with no mapping, or one whose target cannot be fetched, is a
// Dependency error.
func (l *Library) Dep(name string, progress cache.Progress) (*Artifact, error) {
	ref, ok := l.deps[name]
	if !ok {
		return nil, depot.DependencyError("no dependency mapping for %q", name)
	}
	art, err := l.Get(ref, progress)
	if err != nil {
		return nil, depot.NewError(depot.Dependency, err, "fetching dependency %q (%s)", name, ref)
	}
	if l.depCallback != nil {
		l.depCallback(name, art)
	}
	return art, nil
}

// Has reports whether ref resolves and its artifact is in the local
// cache tier.
func (l *Library) Has(ref string) (bool, error) {
	ident, err := l.Resolve(ref)
	if err != nil || ident == nil {
		return false, err
	}
	key := ident.CacheKey().String()
	if ident.Partition != nil {
		key = ident.Partition.CacheKey().String()
	}
	return l.stack.Has(key)
}

// Locate resolves ref and reports which tier currently holds its
// artifact; sourceID is empty when no tier has it.
func (l *Library) Locate(ref string) (*identity.Identity, string, error) {
	ident, err := l.Resolve(ref)
	if err != nil {
		return nil, "", err
	}
	if ident == nil {
		return nil, "", depot.NotFoundError("%q does not resolve", ref)
	}
	key := ident.CacheKey().String()
	if ident.Partition != nil {
		key = ident.Partition.CacheKey().String()
	}

	if ok, err := l.stack.Has(key); err != nil {
		return ident, "", err
	} else if ok {
		return ident, l.stack.Local().SourceID(), nil
	}
	for _, r := range l.stack.Remotes() {
		ok, err := r.Has(key)
		if err != nil {
			l.logger.Log("locating", key, "remote", r.SourceID(), "err", err)
			continue
		}
		if ok {
			return ident, r.SourceID(), nil
		}
	}
	return ident, "", nil
}

// List returns the datasets known to the catalog within the given
// scopes. With lastOnly, only the highest version per dataset id is
// returned, with the losing versions attached as OtherVersions.
func (l *Library) List(lastOnly bool, scopes ...catalog.Location) ([]identity.Identity, error) {
	idents, err := l.catalog.Datasets(scopes...)
	if err != nil {
		return nil, err
	}
	if !lastOnly {
		return idents, nil
	}

	latest := map[string]identity.Identity{}
	others := map[string][]identity.Identity{}
	var order []string
	for _, ident := range idents {
		cur, ok := latest[ident.ID]
		if !ok {
			latest[ident.ID] = ident
			order = append(order, ident.ID)
			continue
		}
		if ident.Version.GreaterThan(toVersion(cur)) {
			others[ident.ID] = append(others[ident.ID], cur)
			latest[ident.ID] = ident
		} else {
			others[ident.ID] = append(others[ident.ID], ident)
		}
	}

	out := make([]identity.Identity, 0, len(order))
	for _, id := range order {
		ident := latest[id]
		ident.OtherVersions = others[id]
		out = append(out, ident)
	}
	return out, nil
}

func toVersion(ident identity.Identity) *semver.Version {
	v := ident.Version
	return &v
}

// Info summarizes the library: dataset count, ledger states, and the
// tiers in play.
type Info struct {
	Datasets  int
	New       int
	Installed int
	Pushed    int
	CacheDir  string
	Remotes   []string
}

func (l *Library) Info() (*Info, error) {
	idents, err := l.catalog.Datasets()
	if err != nil {
		return nil, err
	}
	info := &Info{
		Datasets: len(idents),
		CacheDir: l.stack.Local().Dir(),
	}
	for _, r := range l.stack.Remotes() {
		info.Remotes = append(info.Remotes, r.SourceID())
	}

	led := l.catalog.Ledger()
	for state, n := range map[catalog.State]*int{
		catalog.StateNew:       &info.New,
		catalog.StateInstalled: &info.Installed,
		catalog.StatePushed:    &info.Pushed,
	} {
		recs, err := led.ByState(state)
		if err != nil {
			return nil, err
		}
		*n = len(recs)
	}
	return info, nil
}

// MarkUpdated invalidates derived metadata for a vid and any named
// aggregates. It never populates the metacache; that belongs to the
// collaborators computing the derived data.
func (l *Library) MarkUpdated(vid string, aggregates ...string) {
	if l.meta == nil {
		return
	}
	if vid != "" {
		if err := l.meta.DeleteKey(metacache.NewVidKey(vid)); err != nil {
			l.logger.Log("invalidating", vid, "err", err)
		}
	}
	for _, name := range aggregates {
		if err := l.meta.DeleteKey(metacache.NewAggregateKey(name)); err != nil {
			l.logger.Log("invalidating", name, "err", err)
		}
	}
}

// Remotes lists the configured remote tiers in priority order.
func (l *Library) Remotes() []cache.Tier {
	return l.stack.Remotes()
}

// SyncLocal rebuilds the catalog from the local cache tier.
func (l *Library) SyncLocal(cleanFirst bool) (*depsync.Summary, error) {
	return l.engine.Local(cleanFirst)
}

// SyncRemote pulls unseen artifacts from the given remotes (all
// configured remotes when nil).
func (l *Library) SyncRemote(remotes []cache.Tier, lastOnly, cleanFirst bool) (*depsync.Summary, error) {
	return l.engine.Remote(remotes, lastOnly, cleanFirst)
}

// Push uploads one artifact to the upstream tier.
func (l *Library) Push(upstream cache.Tier, ref string, dryRun bool, progress cache.Progress) (*depsync.PushResult, error) {
	return l.engine.Push(upstream, ref, dryRun, progress)
}

// PushAll uploads every artifact the ledger holds in state new.
func (l *Library) PushAll(upstream cache.Tier, dryRun, keepGoing bool, progress cache.Progress) (*depsync.Summary, error) {
	return l.engine.PushAll(upstream, dryRun, keepGoing, progress)
}

func (l *Library) Close() error {
	return l.catalog.Close()
}
