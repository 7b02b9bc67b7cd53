// Package metacache is the cache of derived metadata (rendered
// documentation, search summaries, library info) that collaborators
// key by dataset vid or by a named aggregate. The core never populates
// it; it only invalidates entries when the underlying records change.
package metacache

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrNotCached = errors.New("item not in metadata cache")

type Reader interface {
	GetKey(k Keyer) ([]byte, time.Time, error)
}

type Writer interface {
	SetKey(k Keyer, v []byte) error
}

type Deleter interface {
	DeleteKey(k Keyer) error
}

type Client interface {
	Reader
	Writer
	Deleter
}

// Keyer provides the key under which to store the data.
type Keyer interface {
	Key() string
}

type vidKey struct {
	vid string
}

// NewVidKey keys derived metadata by the dataset or partition vid it
// was computed from.
func NewVidKey(vid string) Keyer {
	return &vidKey{vid}
}

func (k *vidKey) Key() string {
	return strings.Join([]string{
		"depotdocv1", // Just to version in case we need to change format later.
		k.vid,
	}, "|")
}

type aggregateKey struct {
	name string
}

// NewAggregateKey keys metadata derived from many records at once,
// e.g. "bundle_index" or "library_info".
func NewAggregateKey(name string) Keyer {
	return &aggregateKey{name}
}

func (k *aggregateKey) Key() string {
	return strings.Join([]string{
		"depotaggv1",
		k.name,
	}, "|")
}
