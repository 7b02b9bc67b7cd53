// Package fs implements a cache tier rooted at a local directory.
// Writes are staged: bytes land in a temp file under .staging/ and are
// renamed into place once complete, so a crash mid-write never leaves
// a partial artifact visible.
package fs

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/cache"
)

const stagingDir = ".staging"

type Tier struct {
	root     string
	priority int
}

var _ cache.PathTier = &Tier{}

// New creates (if needed) and opens a filesystem tier rooted at dir.
// priority matters only when the tier is used as a remote.
func New(dir string, priority int) (*Tier, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving cache dir %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(abs, stagingDir), 0777); err != nil {
		return nil, errors.Wrapf(err, "creating cache dir %s", abs)
	}
	return &Tier{root: abs, priority: priority}, nil
}

func (t *Tier) SourceID() string { return "file://" + t.root }
func (t *Tier) Priority() int    { return t.priority }
func (t *Tier) Dir() string      { return t.root }

func (t *Tier) Path(key string) string {
	return filepath.Join(t.root, filepath.FromSlash(key))
}

func (t *Tier) Has(key string) (bool, error) {
	info, err := os.Stat(t.Path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (t *Tier) Get(key string) (io.ReadCloser, int64, error) {
	f, err := os.Open(t.Path(key))
	if os.IsNotExist(err) {
		return nil, 0, depot.NotFoundError("%s not in %s", key, t.SourceID())
	}
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (t *Tier) Put(key string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(t.root, stagingDir), "put-*")
	if err != nil {
		return 0, errors.Wrap(err, "creating staging file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, errors.Wrapf(err, "staging %s", key)
	}

	dst := t.Path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0777); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, errors.Wrapf(err, "committing %s", key)
	}
	return n, nil
}

func (t *Tier) Remove(key string) error {
	err := os.Remove(t.Path(key))
	if os.IsNotExist(err) {
		return depot.NotFoundError("%s not in %s", key, t.SourceID())
	}
	return err
}

// List walks the tier and returns every key, in slash form, relative
// to the root. The staging area is skipped.
func (t *Tier) List() ([]string, error) {
	var keys []string
	err := filepath.Walk(t.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == stagingDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, strings.ReplaceAll(rel, string(filepath.Separator), "/"))
		return nil
	})
	return keys, err
}
