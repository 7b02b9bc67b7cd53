// Package cache defines the uniform capability implemented by every
// cache tier, and the Stack that composes one local tier with an
// ordered set of remote tiers.
package cache

import (
	"io"
	"os"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// SizeUnknown is returned by Tier.Get when the backend cannot report
// the artifact's size ahead of the copy.
const SizeUnknown int64 = -1

// Progress is called as bytes are copied during a transfer. total is
// SizeUnknown when the source cannot report it. A nil Progress is
// always acceptable.
type Progress func(copied, total int64)

// Tier is the uniform capability of a single cache: a flat namespace
// of keys (the wire format of identity.Key) mapping to artifact bytes.
// It is implemented by the local filesystem cache and by each remote.
//
// Operations block; callers impose timeouts at the transport layer.
type Tier interface {
	// SourceID identifies this tier in ledger records, e.g.
	// "file:///var/lib/depot" or "s3://bucket/prefix".
	SourceID() string

	// Priority ranks remote tiers for reads; lower wins. The local
	// tier's priority is not consulted: it is always read first.
	Priority() int

	Has(key string) (bool, error)

	// Get opens the artifact for reading, also reporting its size when
	// known. The returned error wraps depot.NotFound when the key is
	// absent.
	Get(key string) (io.ReadCloser, int64, error)

	// Put stores the artifact, replacing any previous value, and
	// returns the number of bytes written.
	Put(key string, r io.Reader) (int64, error)

	Remove(key string) error

	// List returns every key in the tier.
	List() ([]string, error)
}

// PathTier is a Tier whose artifacts are materialized as local files.
// The local tier of a Stack must be one of these.
type PathTier interface {
	Tier

	// Path resolves the key's location on disk without checking that
	// anything exists there.
	Path(key string) string

	// Dir is the tier's root directory.
	Dir() string
}

// DigestFile computes the sha256 digest and size of a local file, for
// recording in the ledger and verifying pushes.
func DigestFile(path string) (digest.Digest, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.Wrap(err, "opening file for digest")
	}
	defer f.Close()

	digester := digest.SHA256.Digester()
	n, err := io.Copy(digester.Hash(), f)
	if err != nil {
		return "", 0, errors.Wrap(err, "digesting file")
	}
	return digester.Digest(), n, nil
}

// progressReader reports copy progress to a callback as it is read.
type progressReader struct {
	r      io.Reader
	total  int64
	copied int64
	cb     Progress
}

// NewProgressReader wraps r so cb observes the copy as it proceeds.
// With a nil cb, r is returned unwrapped.
func NewProgressReader(r io.Reader, total int64, cb Progress) io.Reader {
	if cb == nil {
		return r
	}
	return &progressReader{r: r, total: total, cb: cb}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.copied += int64(n)
		p.cb(p.copied, p.total)
	}
	return n, err
}
