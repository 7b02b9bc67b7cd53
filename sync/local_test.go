package sync_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
)

func TestLocalRebuild(t *testing.T) {
	fx := newFixture(t)
	writeLocalBundle(t, fx.local, "census", "2.0.0", "people", "places")
	writeLocalBundle(t, fx.local, "weather", "1.0.3")

	sum, err := fx.engine.Local(false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 2)

	datasets, err := fx.catalog.Datasets()
	require.NoError(t, err)
	assert.Len(t, datasets, 2)

	ident, err := fx.catalog.ResolveOne("census", nil)
	require.NoError(t, err)
	require.NotNil(t, ident)
	parts, err := fx.catalog.Partitions(ident.VID)
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	// The walk must treat the partition directory as part of the
	// bundle, not as a source of further bundles.
	led := fx.catalog.Ledger()
	recs, err := led.BySource(fx.local.SourceID(), identity.KindBundle)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// Local rebuilds record per-partition files too.
	recs, err = led.BySource(fx.local.SourceID(), identity.KindPartition)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestLocalSkipsNonBundleFiles(t *testing.T) {
	fx := newFixture(t)
	writeLocalBundle(t, fx.local, "census", "2.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(fx.local.Dir(), "notes.txt"), []byte("scratch"), 0666))
	require.NoError(t, os.MkdirAll(filepath.Join(fx.local.Dir(), "meta"), 0777))
	require.NoError(t, os.WriteFile(filepath.Join(fx.local.Dir(), "meta", "index-1.0.0.db"), []byte("derived"), 0666))

	sum, err := fx.engine.Local(false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 1)
}

func TestLocalIsolatesCorruptContainer(t *testing.T) {
	fx := newFixture(t)
	writeLocalBundle(t, fx.local, "good", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(fx.local.Dir(), "bad-1.0.0.db"), []byte("garbage"), 0666))

	sum, err := fx.engine.Local(false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed())

	ident, err := fx.catalog.ResolveOne("good", nil)
	require.NoError(t, err)
	require.NotNil(t, ident)
}

func TestLocalCleanFirstDropsStaleRecords(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")

	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	// The file disappears from disk; a clean rebuild must forget it.
	require.NoError(t, os.Remove(fx.local.Path(ident.CacheKey().String())))

	sum, err := fx.engine.Local(true)
	require.NoError(t, err)
	assert.Empty(t, sum.Items)

	got, err := fx.catalog.ResolveOne("census", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	rec, err := fx.catalog.Ledger().Get(ident.VID, identity.KindBundle)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLocalRerunKeepsState(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")

	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	led := fx.catalog.Ledger()
	require.NoError(t, led.SetState(ident.VID, identity.KindBundle, catalog.StatePushed))
	require.NoError(t, fx.catalog.Commit())

	// A re-run refreshes records but never regresses their state.
	_, err = fx.engine.Local(false)
	require.NoError(t, err)

	rec, err := led.Get(ident.VID, identity.KindBundle)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StatePushed, rec.State)
}
