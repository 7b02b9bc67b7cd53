package sync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotproject/depot/cache/mem"
	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
)

func TestRemoteLastOnlyDedup(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	seedRemote(t, remote, "a", "1.0.1")
	seedRemote(t, remote, "b", "1.0.0")
	fx := newFixture(t, remote)

	sum, err := fx.engine.Remote(nil, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 2)

	ok, err := fx.stack.Has("a-1.0.1.db")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = fx.stack.Has("b-1.0.0.db")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = fx.stack.Has("a-1.0.0.db")
	require.NoError(t, err)
	assert.False(t, ok, "older version must not be pulled")

	ident, err := fx.catalog.ResolveOne("a", nil)
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, "1.0.1", ident.Version.String())

	recs, err := fx.catalog.Ledger().BySource(remote.SourceID(), identity.KindBundle)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, catalog.StateInstalled, rec.State)
	}
}

func TestRemoteAllVersions(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	seedRemote(t, remote, "a", "1.0.1")
	fx := newFixture(t, remote)

	sum, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 2)

	ok, err := fx.stack.Has("a-1.0.0.db")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemoteUnparseableKeyExcluded(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	remote.Set("junk.db", []byte("no version suffix"))
	fx := newFixture(t, remote)

	sum, err := fx.engine.Remote(nil, true, false)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Failed())
	assert.Len(t, sum.Items, 1)

	// A key with no parseable version never wins the latest-version
	// comparison, so it isn't even fetched.
	assert.Equal(t, 0, remote.GetCount["junk.db"])
}

func TestRemotePartialFailureIsolation(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "good", "1.0.0")
	remote.Set("bad-1.0.0.db", []byte("this is not a sqlite container"))
	fx := newFixture(t, remote)

	sum, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed())

	ident, err := fx.catalog.ResolveOne("good", nil)
	require.NoError(t, err)
	require.NotNil(t, ident)
	assert.Equal(t, "good-1.0.0", ident.VName())

	ident, err = fx.catalog.ResolveOne("bad", nil)
	require.NoError(t, err)
	assert.Nil(t, ident, "corrupt container must not reach the catalog")
}

func TestRemoteSkipsKnownRecords(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	fx := newFixture(t, remote)

	sum, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	first := remote.GetCount["a-1.0.0.db"]

	sum, err = fx.engine.Remote(nil, false, false)
	require.NoError(t, err)
	assert.Empty(t, sum.Items, "second run has nothing to do")
	assert.Equal(t, first, remote.GetCount["a-1.0.0.db"])
}

func TestRemoteCleanFirstReexamines(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	fx := newFixture(t, remote)

	_, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)

	sum, err := fx.engine.Remote(nil, false, true)
	require.NoError(t, err)
	assert.Len(t, sum.Items, 1, "cleanFirst drops the ledger, so the key is pulled again")
	assert.Equal(t, 0, sum.Failed())
}

func TestRemoteRecordsRemoteScope(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	fx := newFixture(t, remote)

	_, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)

	idents, err := fx.catalog.Datasets(catalog.LocationRemote)
	require.NoError(t, err)
	require.Len(t, idents, 1)
	assert.Equal(t, "a-1.0.0", idents[0].VName())

	idents, err = fx.catalog.Datasets(catalog.LocationLibrary)
	require.NoError(t, err)
	assert.Empty(t, idents, "a pulled dataset is known from the remote, not the library")
}

func TestRemoteInvalidatesDerivedCaches(t *testing.T) {
	remote := mem.New("mem://upstream", 10)
	seedRemote(t, remote, "a", "1.0.0")
	fx := newFixture(t, remote)

	var keys []string
	fx.engine.Invalidate = func(vid, key string) { keys = append(keys, key) }

	_, err := fx.engine.Remote(nil, false, false)
	require.NoError(t, err)
	assert.Contains(t, keys, "bundle_index")
	assert.Contains(t, keys, "library_info")
}
