// Package identity defines the immutable values naming bundles and
// partitions, and the structured cache keys derived from them.
package identity

import (
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind says whether an identity names a top-level bundle or a child
// partition. The values double as the artifact kinds recorded in the
// ledger.
type Kind string

const (
	KindBundle    Kind = "bundle"
	KindPartition Kind = "partition"
)

// Identity describes a dataset bundle or partition: its stable logical
// identifier, its versioned identifier, and the names derived from
// them. Identities are values; nothing about one changes after
// construction.
//
// VID is globally unique: two identities sharing ID but differing in
// Version are distinct VIDs and may coexist in the catalog, though only
// one of them resolves by bare ID.
type Identity struct {
	ID      string
	VID     string
	Name    string
	Version semver.Version
	Kind    Kind

	// Dir, when non-empty, is the cache-key directory the artifact
	// lives under. Partitions are keyed under their owning bundle's
	// directory; bundles with a path-qualified Name derive it from the
	// name instead.
	Dir string

	// BundleVID is set on partition identities: the VID of the owning
	// bundle.
	BundleVID string

	// Partition is set by the resolver on a bundle identity when the
	// reference being resolved named one of its partitions.
	Partition *Identity

	// OtherVersions carries sibling revisions of the same ID that were
	// candidates during resolution but lost to a higher version.
	OtherVersions []Identity
}

// New builds a bundle identity. The VID is the ID qualified by the
// full version, so revisions of the same dataset get distinct VIDs.
func New(id, name string, v semver.Version) Identity {
	return Identity{
		ID:      id,
		VID:     id + "-" + v.String(),
		Name:    name,
		Version: v,
		Kind:    KindBundle,
	}
}

// NewPartition builds a partition identity owned by bundle. Its cache
// key nests under the bundle's key directory.
func NewPartition(bundle Identity, id, name string, v semver.Version) Identity {
	return Identity{
		ID:        id,
		VID:       id + "-" + v.String(),
		Name:      name,
		Version:   v,
		Kind:      KindPartition,
		Dir:       bundle.CacheKey().DirName(),
		BundleVID: bundle.VID,
	}
}

// VName is the versioned, human-readable name: name-MAJOR.MINOR.PATCH.
func (i Identity) VName() string {
	return i.Name + "-" + i.Version.String()
}

// Revision is the displayed integer revision: the trailing numeric
// component of the version, matching what remote listings encode as
// the group immediately before the file extension.
func (i Identity) Revision() int {
	return int(i.Version.Patch())
}

// CacheKey derives the artifact's cache key. It is a pure function of
// the identity's fields.
func (i Identity) CacheKey() Key {
	dir, name := i.Dir, i.Name
	if dir == "" && strings.Contains(name, "/") {
		dir, name = path.Dir(name), path.Base(name)
	}
	return Key{Dir: dir, Name: name, Version: i.Version, Ext: DefaultExt}
}

// IsBundle reports whether the identity names a top-level bundle.
func (i Identity) IsBundle() bool { return i.Kind == KindBundle }
