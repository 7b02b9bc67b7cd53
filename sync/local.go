package sync

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/depotproject/depot/catalog"
	"github.com/depotproject/depot/identity"
)

// Local rebuilds the catalog's bundle and partition records from what
// physically exists in the local cache tier. With cleanFirst, all
// existing library/partition rows and ledger records are purged before
// the walk (a full rebuild).
func (e *Engine) Local(cleanFirst bool) (*Summary, error) {
	logger := e.logger()
	led := e.Catalog.Ledger()
	sum := &Summary{}

	if cleanFirst {
		if err := led.DeleteByKind(identity.KindBundle, identity.KindPartition); err != nil {
			e.Catalog.Rollback()
			return nil, err
		}
		if err := e.Catalog.Purge(catalog.LocationLibrary, catalog.LocationPartition); err != nil {
			e.Catalog.Rollback()
			return nil, err
		}
		if err := e.Catalog.Commit(); err != nil {
			return nil, err
		}
	}

	root := e.Stack.Local().Dir()
	logger.Log("rebuilding", "library", "dir", root)

	paths, err := e.walkBundles(root, sum)
	if err != nil {
		return sum, err
	}

	// Open everything first so we can install cheaper bundles (fewer
	// partitions) ahead of the rest, surfacing structural problems
	// early.
	type opened struct {
		path  string
		parts int
	}
	var bundles []opened
	for _, path := range paths {
		b, err := e.Bundles.Acquire(path)
		if err != nil {
			logger.Log("path", path, "err", err)
			sum.add(Outcome{Key: path, Err: err})
			continue
		}
		n, err := b.PartitionCount()
		e.Bundles.Release(b)
		if err != nil {
			logger.Log("path", path, "err", err)
			sum.add(Outcome{Key: path, Err: err})
			continue
		}
		bundles = append(bundles, opened{path: path, parts: n})
	}
	sort.SliceStable(bundles, func(i, j int) bool {
		return bundles[i].parts < bundles[j].parts
	})

	source := e.Stack.Local().SourceID()
	for _, o := range bundles {
		b, err := e.Bundles.Acquire(o.path)
		if err != nil {
			sum.add(Outcome{Key: o.path, Err: err})
			continue
		}
		ident := b.Identity()
		logger.Log("installing", ident.VName())
		err = e.install(b, source, catalog.LocationLibrary, catalog.StateInstalled, true)
		e.Bundles.Release(b)
		if err != nil {
			logger.Log("installing", ident.VName(), "err", err)
			sum.add(Outcome{Ref: ident.VID, Key: o.path, Err: err})
			continue
		}
		sum.add(Outcome{Ref: ident.VID, Key: o.path, Action: "installed"})
	}

	return sum, nil
}

// walkBundles collects candidate bundle containers under root. Any
// directory that shares a basename with a container file one level up
// holds that bundle's partitions and is skipped, so partitions are
// never double-counted as top-level bundles.
func (e *Engine) walkBundles(root string, sum *Summary) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			e.logger().Log("path", path, "err", err)
			return nil
		}
		if info.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			if _, err := os.Stat(path + "." + identity.DefaultExt); err == nil {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.Contains(path, string(filepath.Separator)+"meta"+string(filepath.Separator)) {
			return nil
		}
		if !strings.HasSuffix(path, "."+identity.DefaultExt) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}
