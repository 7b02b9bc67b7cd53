package sync_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache/mem"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
	depsync "github.com/depotproject/depot/sync"
)

// resetNew rewinds a bundle's ledger record to state new, as put
// tooling does for artifacts built locally.
func resetNew(t *testing.T, fx *fixture, ident identity.Identity) {
	t.Helper()
	require.NoError(t, fx.catalog.Ledger().Reset(ident.VID, identity.KindBundle, catalog.StateNew))
	require.NoError(t, fx.catalog.Commit())
}

func TestPushTransfersAndMarksPushed(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)
	resetNew(t, fx, ident)

	upstream := mem.New("mem://upstream", 10)
	res, err := fx.engine.Push(upstream, ident.VID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, depsync.ActionPushed, res.Action)
	assert.Greater(t, res.Size, int64(0))

	ok, err := upstream.Has(ident.CacheKey().String())
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := fx.catalog.Ledger().Get(ident.VID, identity.KindBundle)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StatePushed, rec.State)
}

func TestPushShortCircuitsWhenUpstreamHas(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)
	resetNew(t, fx, ident)

	key := ident.CacheKey().String()
	upstream := mem.New("mem://upstream", 10)
	upstream.Set(key, []byte("sentinel: already present"))

	res, err := fx.engine.Push(upstream, ident.VID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, depsync.ActionHas, res.Action)
	assert.Equal(t, int64(0), res.Size)

	// No bytes moved: the upstream copy is untouched.
	rc, n, err := upstream.Get(key)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, int64(len("sentinel: already present")), n)

	rec, err := fx.catalog.Ledger().Get(ident.VID, identity.KindBundle)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StatePushed, rec.State)
}

func TestPushDryRunMutatesNothing(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)
	resetNew(t, fx, ident)

	upstream := mem.New("mem://upstream", 10)
	res, err := fx.engine.Push(upstream, ident.VID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, depsync.ActionPush, res.Action)

	ok, err := upstream.Has(ident.CacheKey().String())
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err := fx.catalog.Ledger().Get(ident.VID, identity.KindBundle)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StateNew, rec.State)
}

func TestPushUnknownRefIsNotFound(t *testing.T) {
	fx := newFixture(t)
	upstream := mem.New("mem://upstream", 10)
	_, err := fx.engine.Push(upstream, "nope-1.0.0", false, nil)
	assert.True(t, depot.IsNotFound(err))
}

// Only records in state new are pushable: an already-installed or
// already-pushed record is refused until it is explicitly reset.
func TestPushRequiresStateNew(t *testing.T) {
	fx := newFixture(t)
	ident := writeLocalBundle(t, fx.local, "census", "2.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	upstream := mem.New("mem://upstream", 10)
	_, err = fx.engine.Push(upstream, ident.VID, false, nil)
	require.Error(t, err)
	assert.True(t, depot.IsConflict(err))

	ok, err := upstream.Has(ident.CacheKey().String())
	require.NoError(t, err)
	assert.False(t, ok, "a refused push must not move bytes")

	resetNew(t, fx, ident)
	res, err := fx.engine.Push(upstream, ident.VID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, depsync.ActionPushed, res.Action)
}

func TestPushAll(t *testing.T) {
	fx := newFixture(t)
	a := writeLocalBundle(t, fx.local, "a", "1.0.0")
	b := writeLocalBundle(t, fx.local, "b", "1.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	led := fx.catalog.Ledger()
	for _, ident := range []identity.Identity{a, b} {
		require.NoError(t, led.Reset(ident.VID, identity.KindBundle, catalog.StateNew))
	}
	require.NoError(t, fx.catalog.Commit())

	upstream := mem.New("mem://upstream", 10)
	sum, err := fx.engine.PushAll(upstream, false, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 2)

	for _, ident := range []identity.Identity{a, b} {
		rec, err := led.Get(ident.VID, identity.KindBundle)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, catalog.StatePushed, rec.State)
	}

	// Nothing left in state new; a second batch is a no-op.
	sum, err = fx.engine.PushAll(upstream, false, false, nil)
	require.NoError(t, err)
	assert.Empty(t, sum.Items)
}

func TestPushAllAbortsOnFailureByDefault(t *testing.T) {
	fx := newFixture(t)
	a := writeLocalBundle(t, fx.local, "a", "1.0.0")
	b := writeLocalBundle(t, fx.local, "b", "1.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	led := fx.catalog.Ledger()
	for _, ident := range []identity.Identity{a, b} {
		require.NoError(t, led.Reset(ident.VID, identity.KindBundle, catalog.StateNew))
	}
	require.NoError(t, fx.catalog.Commit())

	// One artifact's file vanishes from the local cache.
	require.NoError(t, os.Remove(fx.local.Path(a.CacheKey().String())))

	upstream := mem.New("mem://upstream", 10)
	sum, err := fx.engine.PushAll(upstream, false, false, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, sum.Failed())
}

func TestPushAllKeepGoingIsolatesFailure(t *testing.T) {
	fx := newFixture(t)
	a := writeLocalBundle(t, fx.local, "a", "1.0.0")
	b := writeLocalBundle(t, fx.local, "b", "1.0.0")
	_, err := fx.engine.Local(false)
	require.NoError(t, err)

	led := fx.catalog.Ledger()
	for _, ident := range []identity.Identity{a, b} {
		require.NoError(t, led.Reset(ident.VID, identity.KindBundle, catalog.StateNew))
	}
	require.NoError(t, fx.catalog.Commit())

	require.NoError(t, os.Remove(fx.local.Path(a.CacheKey().String())))

	upstream := mem.New("mem://upstream", 10)
	sum, err := fx.engine.PushAll(upstream, false, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed())
	assert.Len(t, sum.Items, 2)

	rec, err := led.Get(b.VID, identity.KindBundle)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, catalog.StatePushed, rec.State, "the healthy artifact still goes out")
}
