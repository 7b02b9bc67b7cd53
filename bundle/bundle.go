// Package bundle reads and writes the bundle container format: a
// SQLite file carrying the bundle's identity and the identities of its
// partitions. The data tables themselves belong to whoever built the
// bundle; this package only cares about the identity tables.
package bundle

import (
	"database/sql"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/identity"
)

// Bundle is an open bundle container. Bundles acquired through a
// Registry must be released through it; directly opened bundles are
// closed with Close.
type Bundle struct {
	path  string
	db    *sql.DB
	ident identity.Identity
}

// Open opens the container at path and extracts its identity. Files
// that are not SQLite databases, or that lack the identity table,
// fail with an error of kind NotABundle.
func Open(path string) (*Bundle, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	row := db.QueryRow(`SELECT id, vid, name, version FROM bundle_identity`)
	var id, vid, name, version string
	if err := row.Scan(&id, &vid, &name, &version); err != nil {
		db.Close()
		return nil, depot.NotABundleError(err, "%s is not a bundle container", path)
	}
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		db.Close()
		return nil, depot.NotABundleError(err, "%s carries an invalid version %q", path, version)
	}

	ident := identity.New(id, name, *v)
	if ident.VID != vid {
		// Trust the recorded vid; it is the authoritative key.
		ident.VID = vid
	}
	return &Bundle{path: path, db: db, ident: ident}, nil
}

// Create writes a new bundle container at path. Used by packaging
// tools and tests; the data tables are left to the producer.
func Create(path string, ident identity.Identity, partitions []identity.Identity) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE bundle_identity (id TEXT NOT NULL, vid TEXT NOT NULL, name TEXT NOT NULL, version TEXT NOT NULL)`,
		`CREATE TABLE bundle_partitions (id TEXT NOT NULL, vid TEXT NOT NULL, name TEXT NOT NULL, version TEXT NOT NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return errors.Wrapf(err, "creating schema in %s", path)
		}
	}
	if _, err := db.Exec(`INSERT INTO bundle_identity (id, vid, name, version) VALUES (?, ?, ?, ?)`,
		ident.ID, ident.VID, ident.Name, ident.Version.String()); err != nil {
		return errors.Wrap(err, "writing identity")
	}
	for _, p := range partitions {
		if _, err := db.Exec(`INSERT INTO bundle_partitions (id, vid, name, version) VALUES (?, ?, ?, ?)`,
			p.ID, p.VID, p.Name, p.Version.String()); err != nil {
			return errors.Wrapf(err, "writing partition %s", p.VID)
		}
	}
	return nil
}

// Path is the filesystem location the bundle was opened from.
func (b *Bundle) Path() string { return b.path }

// Identity returns the bundle's identity.
func (b *Bundle) Identity() identity.Identity { return b.ident }

// Partitions lists the bundle's child partition identities, keyed
// under this bundle's cache directory.
func (b *Bundle) Partitions() ([]identity.Identity, error) {
	rows, err := b.db.Query(`SELECT id, vid, name, version FROM bundle_partitions ORDER BY name`)
	if err != nil {
		return nil, errors.Wrapf(err, "listing partitions of %s", b.ident.VID)
	}
	defer rows.Close()

	var parts []identity.Identity
	for rows.Next() {
		var id, vid, name, version string
		if err := rows.Scan(&id, &vid, &name, &version); err != nil {
			return nil, err
		}
		v, err := semver.StrictNewVersion(version)
		if err != nil {
			return nil, depot.NotABundleError(err, "partition %s carries an invalid version %q", vid, version)
		}
		p := identity.NewPartition(b.ident, id, name, *v)
		if p.VID != vid {
			p.VID = vid
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// PartitionCount reports how many partitions the bundle declares,
// without materializing their identities.
func (b *Bundle) PartitionCount() (int, error) {
	var n int
	err := b.db.QueryRow(`SELECT COUNT(*) FROM bundle_partitions`).Scan(&n)
	return n, err
}

func (b *Bundle) Close() error {
	return b.db.Close()
}
