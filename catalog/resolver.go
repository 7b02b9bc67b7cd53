package catalog

import (
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/identity"
)

// ResolveOne maps a loose reference to at most one identity. The
// reference is tried, in order, as exact vid, exact vname, bare id,
// then bare name, first against datasets and then (when the PARTITION
// scope is requested) against partitions. Bare references resolve to
// the highest version; siblings are attached as OtherVersions.
func (c *SQL) ResolveOne(ref string, scopes []Location) (*identity.Identity, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes()
	}
	locs := bundleScopes(scopes)

	for _, col := range []string{"vid", "vname"} {
		ident, err := c.datasetsBy(sq.Eq{col: ref, "location": locs})
		if err != nil || ident != nil {
			return ident, err
		}
	}
	for _, col := range []string{"id", "name"} {
		ident, err := c.datasetsBy(sq.Eq{col: ref, "location": locs})
		if err != nil || ident != nil {
			return ident, err
		}
	}

	if !scopesInclude(scopes, LocationPartition) {
		return nil, nil
	}
	for _, col := range []string{"vid", "vname", "id", "name"} {
		part, err := c.partitionsBy(sq.Eq{col: ref})
		if err != nil {
			return nil, err
		}
		if part == nil {
			continue
		}
		owner, err := c.datasetByVID(part.BundleVID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, depot.NotFoundError("partition %s references missing dataset %s", part.VID, part.BundleVID)
		}
		owner.Partition = part
		return owner, nil
	}

	return nil, nil
}

// datasetsBy fetches all dataset rows matching the predicate and
// reduces them to one identity: the highest version of a single id.
// Matches spanning more than one id are ambiguous.
func (c *SQL) datasetsBy(pred sq.Eq) (*identity.Identity, error) {
	rows, err := c.q().Select("id", "vid", "name", "version").From("datasets").
		Where(pred).Query()
	if err != nil {
		return nil, errors.Wrap(err, "resolving dataset reference")
	}
	idents, err := scanDatasets(rows)
	if err != nil {
		return nil, err
	}
	return reduceCandidates(idents)
}

func (c *SQL) datasetByVID(vid string) (*identity.Identity, error) {
	rows, err := c.q().Select("id", "vid", "name", "version").From("datasets").
		Where(sq.Eq{"vid": vid}).Query()
	if err != nil {
		return nil, err
	}
	idents, err := scanDatasets(rows)
	if err != nil || len(idents) == 0 {
		return nil, err
	}
	return &idents[0], nil
}

func (c *SQL) partitionsBy(pred sq.Eq) (*identity.Identity, error) {
	rows, err := c.q().Select("id", "vid", "d_vid", "name", "version", "dir").From("partitions").
		Where(pred).Query()
	if err != nil {
		return nil, errors.Wrap(err, "resolving partition reference")
	}
	idents, err := scanPartitions(rows)
	if err != nil {
		return nil, err
	}
	return reduceCandidates(idents)
}

// reduceCandidates picks the highest-versioned identity among
// candidates sharing one id. Candidates with different ids cannot be
// reduced: that reference is ambiguous and resolution must fail rather
// than silently pick.
func reduceCandidates(idents []identity.Identity) (*identity.Identity, error) {
	if len(idents) == 0 {
		return nil, nil
	}
	for _, i := range idents[1:] {
		if i.ID != idents[0].ID {
			return nil, depot.MultipleFoundError("reference matches more than one dataset (%s, %s)", idents[0].VID, i.VID)
		}
	}
	sort.SliceStable(idents, func(a, b int) bool {
		return idents[a].Version.GreaterThan(&idents[b].Version)
	})
	primary := idents[0]
	primary.OtherVersions = append([]identity.Identity(nil), idents[1:]...)
	return &primary, nil
}
