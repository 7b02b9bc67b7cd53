package sync_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"

	"github.com/depotproject/depot/bundle"
	"github.com/depotproject/depot/cache"
	"github.com/depotproject/depot/cache/fs"
	"github.com/depotproject/depot/cache/mem"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
	depsync "github.com/depotproject/depot/sync"
)

type fixture struct {
	engine  *depsync.Engine
	catalog *catalog.SQL
	stack   *cache.Stack
	local   *fs.Tier
}

func newFixture(t *testing.T, remotes ...cache.Tier) *fixture {
	t.Helper()
	c, err := catalog.NewSQL("sqlite", filepath.Join(t.TempDir(), "catalog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	local, err := fs.New(t.TempDir(), 0)
	require.NoError(t, err)
	stack, err := cache.NewStack(local, remotes, log.NewNopLogger())
	require.NoError(t, err)

	return &fixture{
		engine: &depsync.Engine{
			Catalog: c,
			Stack:   stack,
			Bundles: bundle.NewRegistry(),
			Logger:  log.NewNopLogger(),
		},
		catalog: c,
		stack:   stack,
		local:   local,
	}
}

// bundleBytes builds a valid bundle container in a scratch file and
// returns its raw bytes, for seeding in-memory remotes.
func bundleBytes(t *testing.T, name, version string, partitions ...string) ([]byte, identity.Identity) {
	t.Helper()
	ident := identity.New("d-"+name, name, *semver.MustParse(version))
	var parts []identity.Identity
	for _, p := range partitions {
		parts = append(parts, identity.NewPartition(ident, "p-"+p, p, ident.Version))
	}
	path := filepath.Join(t.TempDir(), "scratch.db")
	require.NoError(t, bundle.Create(path, ident, parts))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw, ident
}

// writeLocalBundle materializes a bundle container at its cache key
// inside the local tier, as if it had been put there.
func writeLocalBundle(t *testing.T, local *fs.Tier, name, version string, partitions ...string) identity.Identity {
	t.Helper()
	ident := identity.New("d-"+name, name, *semver.MustParse(version))
	var parts []identity.Identity
	for _, p := range partitions {
		parts = append(parts, identity.NewPartition(ident, "p-"+p, p, ident.Version))
	}
	path := local.Path(ident.CacheKey().String())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0777))
	require.NoError(t, bundle.Create(path, ident, parts))

	// Partition files live in the directory named after the bundle.
	for _, p := range parts {
		ppath := local.Path(p.CacheKey().String())
		require.NoError(t, os.MkdirAll(filepath.Dir(ppath), 0777))
		require.NoError(t, os.WriteFile(ppath, []byte("partition data for "+p.Name), 0666))
	}
	return ident
}

func seedRemote(t *testing.T, r *mem.Tier, name, version string) identity.Identity {
	t.Helper()
	raw, ident := bundleBytes(t, name, version)
	r.Set(ident.CacheKey().String(), raw)
	return ident
}
