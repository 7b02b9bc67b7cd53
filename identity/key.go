package identity

import (
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// DefaultExt is the container extension used for bundle and partition
// files in every cache tier.
const DefaultExt = "db"

var ErrInvalidKey = errors.New("invalid cache key")

// Key is the structured form of a cache key. The wire format, which
// every tier and every remote listing must match, is
//
//	[dir/]name-MAJOR.MINOR.PATCH.ext
//
// e.g. "example.com/census-2.0.0.db", where the version suffix is the
// trailing dash-separated group immediately before the extension. Key
// is validated at construction (via ParseKey) or derived from an
// Identity; it is never re-derived ad hoc from strings elsewhere.
type Key struct {
	Dir     string // optional parent directory, e.g. a bundle's partition dir
	Name    string
	Version semver.Version
	Ext     string
}

// String renders the key in its wire format. String and ParseKey
// round-trip.
func (k Key) String() string {
	var b strings.Builder
	if k.Dir != "" {
		b.WriteString(k.Dir)
		b.WriteByte('/')
	}
	b.WriteString(k.Name)
	b.WriteByte('-')
	b.WriteString(k.Version.String())
	b.WriteByte('.')
	if k.Ext != "" {
		b.WriteString(k.Ext)
	} else {
		b.WriteString(DefaultExt)
	}
	return b.String()
}

// DirName is the key with the extension stripped: the directory that
// holds the bundle's partitions.
func (k Key) DirName() string {
	s := k.String()
	return strings.TrimSuffix(s, path.Ext(s))
}

// StripVersion returns the key without its version suffix or
// extension. Remote sync uses this to group several revisions of the
// same artifact when selecting the latest one.
func (k Key) StripVersion() string {
	if k.Dir != "" {
		return k.Dir + "/" + k.Name
	}
	return k.Name
}

// ParseKey parses the wire format back into a Key. The version suffix
// must be a plain MAJOR.MINOR.PATCH triple; anything looser (missing
// components, pre-release tags) is rejected so that a key containing
// dashes in its name is never misparsed.
func ParseKey(s string) (Key, error) {
	dir, base := path.Split(s)
	dir = strings.TrimSuffix(dir, "/")

	dot := strings.LastIndex(base, ".")
	if dot <= 0 || dot == len(base)-1 {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q has no extension", s)
	}
	stem, ext := base[:dot], base[dot+1:]

	dash := strings.LastIndex(stem, "-")
	if dash <= 0 || dash == len(stem)-1 {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q has no version suffix", s)
	}
	name, suffix := stem[:dash], stem[dash+1:]

	v, err := semver.StrictNewVersion(suffix)
	if err != nil {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q: version suffix %q", s, suffix)
	}
	if v.String() != suffix {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q: version suffix %q is not MAJOR.MINOR.PATCH", s, suffix)
	}

	return Key{Dir: dir, Name: name, Version: *v, Ext: ext}, nil
}
