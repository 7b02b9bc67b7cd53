package library_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/bundle"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/cache/fs"
	"github.com/depotproject/depot/cache/mem"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
	"github.com/depotproject/depot/library"
	"github.com/depotproject/depot/metacache"
	"github.com/depotproject/depot/search"
)

func newLibrary(t *testing.T, cfg library.Config, remotes ...cache.Tier) (*library.Library, *fs.Tier) {
	t.Helper()
	c, err := catalog.NewSQL("sqlite", filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	local, err := fs.New(t.TempDir(), 0)
	require.NoError(t, err)
	stack, err := cache.NewStack(local, remotes, log.NewNopLogger())
	require.NoError(t, err)

	cfg.Catalog = c
	cfg.Stack = stack
	lib, err := library.New(cfg)
	require.NoError(t, err)
	return lib, local
}

func makeBundle(t *testing.T, dir, name, version string, partitions ...string) (string, identity.Identity) {
	t.Helper()
	ident := identity.New("d-"+name, name, *semver.MustParse(version))
	var parts []identity.Identity
	for _, p := range partitions {
		parts = append(parts, identity.NewPartition(ident, "p-"+p, p, ident.Version))
	}
	path := filepath.Join(dir, ident.CacheKey().String())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, bundle.Create(path, ident, parts))
	return path, ident
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := library.New(library.Config{})
	assert.True(t, depot.IsConfiguration(err))
}

// An empty library backed by a remote holding x-2.0.0.db: after a
// remote sync, get("x") serves from the local tier and the identity
// carries revision 0 and vname x-2.0.0.
func TestGetAfterRemoteSync(t *testing.T) {
	scratch := t.TempDir()
	path, _ := makeBundle(t, scratch, "x", "2.0.0")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	remote := mem.New("mem://upstream", 10)
	remote.Set("x-2.0.0.db", raw)

	lib, local := newLibrary(t, library.Config{}, remote)

	sum, err := lib.SyncRemote(nil, true, false)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Failed())

	art, err := lib.Get("x", nil)
	require.NoError(t, err)
	defer lib.Release(art)

	assert.Equal(t, "x-2.0.0", art.Identity.VName())
	assert.Equal(t, 0, art.Identity.Revision())

	ok, err := local.Has("x-2.0.0.db")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lib.Has("x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetUnknownRefIsNotFound(t *testing.T) {
	lib, _ := newLibrary(t, library.Config{})
	_, err := lib.Get("nope", nil)
	assert.True(t, depot.IsNotFound(err))
}

func TestPutAndIdempotence(t *testing.T) {
	scratch := t.TempDir()
	path, ident := makeBundle(t, scratch, "census", "2.0.0", "people")

	rec := &search.Recorder{}
	lib, local := newLibrary(t, library.Config{Search: rec})

	got, err := lib.Put(path, "", true, false)
	require.NoError(t, err)
	assert.Equal(t, ident.VID, got.VID)

	ok, err := local.Has(ident.CacheKey().String())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, rec.Datasets, ident.VID)
	assert.Equal(t, 1, rec.Commits)

	// Installing the same container again is not an error.
	_, err = lib.Put(path, "", true, false)
	require.NoError(t, err)

	idents, err := lib.List(false)
	require.NoError(t, err)
	assert.Len(t, idents, 1)

	resolved, err := lib.Resolve("census")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	parts, err := lib.Resolve("people")
	require.NoError(t, err)
	require.NotNil(t, parts)
	require.NotNil(t, parts.Partition)
}

func TestRemoveForgetsEverything(t *testing.T) {
	scratch := t.TempDir()
	path, ident := makeBundle(t, scratch, "census", "2.0.0")

	lib, local := newLibrary(t, library.Config{})
	_, err := lib.Put(path, "", false, false)
	require.NoError(t, err)

	require.NoError(t, lib.Remove("census"))

	resolved, err := lib.Resolve("census")
	require.NoError(t, err)
	assert.Nil(t, resolved)

	ok, err := local.Has(ident.CacheKey().String())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDepResolution(t *testing.T) {
	scratch := t.TempDir()
	path, ident := makeBundle(t, scratch, "geonames", "1.0.0")

	var seen []string
	lib, _ := newLibrary(t, library.Config{
		Dependencies: map[string]string{"geo": "geonames"},
		DepCallback:  func(name string, art *library.Artifact) { seen = append(seen, name) },
	})
	_, err := lib.Put(path, "", false, false)
	require.NoError(t, err)

	art, err := lib.Dep("geo", nil)
	require.NoError(t, err)
	defer lib.Release(art)
	assert.Equal(t, ident.VID, art.Identity.VID)
	assert.Equal(t, []string{"geo"}, seen)

	_, err = lib.Dep("unmapped", nil)
	assert.True(t, depot.IsDependency(err))
}

func TestDepUnfetchableIsDependencyError(t *testing.T) {
	lib, _ := newLibrary(t, library.Config{
		Dependencies: map[string]string{"geo": "geonames"},
	})
	_, err := lib.Dep("geo", nil)
	assert.True(t, depot.IsDependency(err))
}

func TestMarkUpdatedInvalidatesMetacache(t *testing.T) {
	meta := metacache.NewMem()
	require.NoError(t, meta.SetKey(metacache.NewVidKey("d-x-1.0.0"), []byte("doc")))
	require.NoError(t, meta.SetKey(metacache.NewAggregateKey("bundle_index"), []byte("index")))

	lib, _ := newLibrary(t, library.Config{Meta: meta})
	lib.MarkUpdated("d-x-1.0.0", "bundle_index")

	_, _, err := meta.GetKey(metacache.NewVidKey("d-x-1.0.0"))
	assert.Equal(t, metacache.ErrNotCached, err)
	_, _, err = meta.GetKey(metacache.NewAggregateKey("bundle_index"))
	assert.Equal(t, metacache.ErrNotCached, err)
}

func TestListLastOnly(t *testing.T) {
	scratch := t.TempDir()
	lib, _ := newLibrary(t, library.Config{})
	for _, v := range []string{"1.0.0", "1.0.1"} {
		path, _ := makeBundle(t, scratch, "a", v)
		_, err := lib.Put(path, "", false, false)
		require.NoError(t, err)
	}
	path, _ := makeBundle(t, scratch, "b", "1.0.0")
	_, err := lib.Put(path, "", false, false)
	require.NoError(t, err)

	idents, err := lib.List(true)
	require.NoError(t, err)
	require.Len(t, idents, 2)

	byName := map[string]identity.Identity{}
	for _, ident := range idents {
		byName[ident.Name] = ident
	}
	assert.Equal(t, "1.0.1", byName["a"].Version.String())
	require.Len(t, byName["a"].OtherVersions, 1)
	assert.Equal(t, "1.0.0", byName["a"].OtherVersions[0].Version.String())
	assert.Empty(t, byName["b"].OtherVersions)
}

func TestLocateAndInfo(t *testing.T) {
	scratch := t.TempDir()
	path, ident := makeBundle(t, scratch, "census", "2.0.0")

	remote := mem.New("mem://upstream", 10)
	lib, local := newLibrary(t, library.Config{}, remote)
	_, err := lib.Put(path, "", false, false)
	require.NoError(t, err)

	got, src, err := lib.Locate("census")
	require.NoError(t, err)
	assert.Equal(t, ident.VID, got.VID)
	assert.Equal(t, local.SourceID(), src)

	info, err := lib.Info()
	require.NoError(t, err)
	assert.Equal(t, 1, info.Datasets)
	assert.Equal(t, 1, info.New)
	assert.Equal(t, local.Dir(), info.CacheDir)
	assert.Equal(t, []string{remote.SourceID()}, info.Remotes)
}
