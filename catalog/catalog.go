// Package catalog is the relational store of dataset and partition
// records, the reference resolver over it, and the artifact ledger
// that drives incremental synchronization.
package catalog

import (
	"github.com/opencontainers/go-digest"

	"github.com/depotproject/depot/identity"
)

// Location scopes catalog records by where the artifact is known from.
type Location string

const (
	LocationLibrary   Location = "library"
	LocationPartition Location = "partition"
	LocationRemote    Location = "remote"
	LocationSource    Location = "source"
)

// DefaultScopes is the resolution scope used when the caller doesn't
// ask for anything narrower: everything except SOURCE.
func DefaultScopes() []Location {
	return []Location{LocationLibrary, LocationPartition, LocationRemote}
}

// State is the synchronization state of a ledger record. States only
// move forward (new, installed, pushed) except on explicit reset.
type State string

const (
	StateNew       State = "new"
	StateInstalled State = "installed"
	StatePushed    State = "pushed"
)

var stateRank = map[State]int{
	StateNew:       0,
	StateInstalled: 1,
	StatePushed:    2,
}

// Rank orders states along their lifecycle. Unknown states rank below
// everything.
func (s State) Rank() int {
	r, ok := stateRank[s]
	if !ok {
		return -1
	}
	return r
}

// Record is one artifact ledger entry. Exactly one record per
// (Ref, Kind) pair is authoritative for state transitions.
type Record struct {
	Ref      string // vid
	Kind     identity.Kind
	SourceID string // which tier the artifact came from
	State    State
	Path     string // cache key, relative to any tier
	Size     int64
	Digest   digest.Digest
}

// Ledger tracks, per artifact and per source, the installation state
// used to drive incremental push and pull.
type Ledger interface {
	// Install upserts the record keyed by (Ref, Kind). An existing
	// record's state is never regressed; other fields are updated.
	Install(rec Record) error

	// Get returns the record for (ref, kind), or nil when absent.
	Get(ref string, kind identity.Kind) (*Record, error)

	ByState(state State) ([]Record, error)
	BySource(sourceID string, kinds ...identity.Kind) ([]Record, error)
	ByRef(ref string) ([]Record, error)

	// SetState moves the record's state forward; a regression is a
	// Conflict error. Reset sets it unconditionally.
	SetState(ref string, kind identity.Kind, state State) error
	Reset(ref string, kind identity.Kind, state State) error

	DeleteBySource(sourceID string, kinds ...identity.Kind) error
	DeleteByKind(kinds ...identity.Kind) error
	DeleteRef(ref string) error
}

// Catalog is the store of dataset/partition records. Mutations happen
// inside an explicit commit boundary: callers Commit (or Rollback) per
// installed artifact.
type Catalog interface {
	// InstallBundle records a dataset at a location. Installing a vid
	// that already exists is a Conflict error.
	InstallBundle(ident identity.Identity, loc Location) error

	// InstallPartition records a partition under its owning dataset.
	InstallPartition(ident identity.Identity) error

	// RemoveBundle deletes the dataset record and its partitions.
	RemoveBundle(vid string) error

	// Datasets lists dataset identities within the given scopes (all
	// bundle scopes when empty).
	Datasets(scopes ...Location) ([]identity.Identity, error)

	// Partitions lists the partition identities of a dataset.
	Partitions(datasetVID string) ([]identity.Identity, error)

	// ResolveOne maps a loose reference (vid, id, vname or name) to at
	// most one identity within the given scopes. Not-found is
	// (nil, nil); ambiguity is a MultipleFound error. Bare ids and
	// names resolve to the highest version, with losing siblings
	// attached as OtherVersions. When the reference names a partition
	// (and the PARTITION scope is included), the owning dataset's
	// identity is returned with Partition set.
	ResolveOne(ref string, scopes []Location) (*identity.Identity, error)

	// Purge removes all dataset/partition rows in the given scopes.
	Purge(scopes ...Location) error

	Ledger() Ledger

	Commit() error
	Rollback() error
	Close() error
}
