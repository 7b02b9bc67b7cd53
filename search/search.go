// Package search declares the interface the full-text indexer
// implements. The indexer itself lives outside this module; the core
// only feeds it dataset and partition records as they install.
package search

import (
	"github.com/depotproject/depot/identity"
)

type Index interface {
	IndexDataset(ident identity.Identity, force bool) error
	IndexPartition(ident identity.Identity, force bool) error
	Commit() error
}

// Nop is the Index used when no indexer is wired in.
type Nop struct{}

func (Nop) IndexDataset(identity.Identity, bool) error   { return nil }
func (Nop) IndexPartition(identity.Identity, bool) error { return nil }
func (Nop) Commit() error                                { return nil }

// Recorder is an Index that remembers what it was asked to index.
// Meant for tests.
type Recorder struct {
	Datasets   []string
	Partitions []string
	Commits    int
}

func (r *Recorder) IndexDataset(ident identity.Identity, force bool) error {
	r.Datasets = append(r.Datasets, ident.VID)
	return nil
}

func (r *Recorder) IndexPartition(ident identity.Identity, force bool) error {
	r.Partitions = append(r.Partitions, ident.VID)
	return nil
}

func (r *Recorder) Commit() error {
	r.Commits++
	return nil
}
