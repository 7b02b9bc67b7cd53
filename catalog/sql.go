package catalog

import (
	"database/sql"

	"github.com/Masterminds/semver/v3"
	sq "github.com/Masterminds/squirrel"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/identity"
)

// SQL implements Catalog on a SQL database. Supported drivers are
// "postgres" and "sqlite". One logical writer at a time: mutations are
// expected to be serialized by the caller, per the concurrency model.
type SQL struct {
	driver      string
	db          *sql.DB
	tx          *sql.Tx
	placeholder sq.PlaceholderFormat
	logger      log.Logger
}

var _ Catalog = &SQL{}

// NewSQL opens (and, if necessary, bootstraps) a catalog database.
func NewSQL(driver, datasource string, logger log.Logger) (*SQL, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var placeholder sq.PlaceholderFormat
	switch driver {
	case "postgres":
		placeholder = sq.Dollar
	case "sqlite":
		placeholder = sq.Question
	default:
		return nil, depot.ConfigurationError("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, datasource)
	if err != nil {
		return nil, errors.Wrapf(err, "opening catalog %s", datasource)
	}
	c := &SQL{driver: driver, db: db, placeholder: placeholder, logger: logger}
	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS datasets (
		id       TEXT NOT NULL,
		vid      TEXT NOT NULL PRIMARY KEY,
		name     TEXT NOT NULL,
		vname    TEXT NOT NULL,
		version  TEXT NOT NULL,
		location TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS partitions (
		id      TEXT NOT NULL,
		vid     TEXT NOT NULL PRIMARY KEY,
		d_vid   TEXT NOT NULL,
		name    TEXT NOT NULL,
		vname   TEXT NOT NULL,
		version TEXT NOT NULL,
		dir     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		ref       TEXT NOT NULL,
		kind      TEXT NOT NULL,
		source_id TEXT NOT NULL,
		state     TEXT NOT NULL,
		path      TEXT NOT NULL,
		size      BIGINT NOT NULL,
		digest    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ref, kind)
	)`,
}

func (c *SQL) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := c.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "bootstrapping catalog schema")
		}
	}
	return nil
}

// runner returns the open transaction when there is one, so reads see
// uncommitted writes within the current commit boundary.
func (c *SQL) runner() sq.BaseRunner {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// begin lazily opens the transaction that mutations run inside until
// the next Commit or Rollback.
func (c *SQL) begin() error {
	if c.tx != nil {
		return nil
	}
	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "beginning catalog transaction")
	}
	c.tx = tx
	return nil
}

func (c *SQL) q() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(c.placeholder).RunWith(c.runner())
}

func (c *SQL) Commit() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	return errors.Wrap(err, "committing catalog transaction")
}

func (c *SQL) Rollback() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	return errors.Wrap(err, "rolling back catalog transaction")
}

func (c *SQL) Close() error {
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	return c.db.Close()
}

func (c *SQL) InstallBundle(ident identity.Identity, loc Location) error {
	if err := c.begin(); err != nil {
		return err
	}
	var existing string
	err := c.q().Select("vid").From("datasets").Where(sq.Eq{"vid": ident.VID}).
		QueryRow().Scan(&existing)
	switch {
	case err == nil:
		return depot.ConflictError("dataset %s is already installed", ident.VID)
	case err != sql.ErrNoRows:
		return errors.Wrapf(err, "checking for dataset %s", ident.VID)
	}

	_, err = c.q().Insert("datasets").
		Columns("id", "vid", "name", "vname", "version", "location").
		Values(ident.ID, ident.VID, ident.Name, ident.VName(), ident.Version.String(), string(loc)).
		Exec()
	return errors.Wrapf(err, "installing dataset %s", ident.VID)
}

func (c *SQL) InstallPartition(ident identity.Identity) error {
	if ident.BundleVID == "" {
		return depot.ConfigurationError("partition %s has no owning bundle", ident.VID)
	}
	if err := c.begin(); err != nil {
		return err
	}
	var existing string
	err := c.q().Select("vid").From("partitions").Where(sq.Eq{"vid": ident.VID}).
		QueryRow().Scan(&existing)
	switch {
	case err == nil:
		return depot.ConflictError("partition %s is already installed", ident.VID)
	case err != sql.ErrNoRows:
		return errors.Wrapf(err, "checking for partition %s", ident.VID)
	}

	_, err = c.q().Insert("partitions").
		Columns("id", "vid", "d_vid", "name", "vname", "version", "dir").
		Values(ident.ID, ident.VID, ident.BundleVID, ident.Name, ident.VName(), ident.Version.String(), ident.Dir).
		Exec()
	return errors.Wrapf(err, "installing partition %s", ident.VID)
}

func (c *SQL) RemoveBundle(vid string) error {
	if err := c.begin(); err != nil {
		return err
	}
	if _, err := c.q().Delete("partitions").Where(sq.Eq{"d_vid": vid}).Exec(); err != nil {
		return errors.Wrapf(err, "removing partitions of %s", vid)
	}
	_, err := c.q().Delete("datasets").Where(sq.Eq{"vid": vid}).Exec()
	return errors.Wrapf(err, "removing dataset %s", vid)
}

// bundleScopes filters a scope list down to the locations datasets can
// carry, defaulting to all of them.
func bundleScopes(scopes []Location) []string {
	var out []string
	for _, s := range scopes {
		if s != LocationPartition {
			out = append(out, string(s))
		}
	}
	if len(out) == 0 {
		out = []string{string(LocationLibrary), string(LocationRemote), string(LocationSource)}
	}
	return out
}

func scopesInclude(scopes []Location, want Location) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

func (c *SQL) Datasets(scopes ...Location) ([]identity.Identity, error) {
	rows, err := c.q().Select("id", "vid", "name", "version").From("datasets").
		Where(sq.Eq{"location": bundleScopes(scopes)}).
		OrderBy("name", "version").
		Query()
	if err != nil {
		return nil, errors.Wrap(err, "listing datasets")
	}
	return scanDatasets(rows)
}

func (c *SQL) Partitions(datasetVID string) ([]identity.Identity, error) {
	rows, err := c.q().Select("id", "vid", "d_vid", "name", "version", "dir").From("partitions").
		Where(sq.Eq{"d_vid": datasetVID}).
		OrderBy("name").
		Query()
	if err != nil {
		return nil, errors.Wrapf(err, "listing partitions of %s", datasetVID)
	}
	return scanPartitions(rows)
}

func (c *SQL) Purge(scopes ...Location) error {
	if err := c.begin(); err != nil {
		return err
	}
	if scopesInclude(scopes, LocationPartition) {
		if _, err := c.q().Delete("partitions").Exec(); err != nil {
			return errors.Wrap(err, "purging partitions")
		}
	}
	locs := bundleScopes(scopes)
	if _, err := c.q().Delete("datasets").Where(sq.Eq{"location": locs}).Exec(); err != nil {
		return errors.Wrap(err, "purging datasets")
	}
	return nil
}

func (c *SQL) Ledger() Ledger {
	return &sqlLedger{c}
}

func scanDatasets(rows *sql.Rows) ([]identity.Identity, error) {
	defer rows.Close()
	var idents []identity.Identity
	for rows.Next() {
		var id, vid, name, version string
		if err := rows.Scan(&id, &vid, &name, &version); err != nil {
			return nil, err
		}
		v, err := semver.StrictNewVersion(version)
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %s has invalid version %q", vid, version)
		}
		ident := identity.New(id, name, *v)
		ident.VID = vid
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

func scanPartitions(rows *sql.Rows) ([]identity.Identity, error) {
	defer rows.Close()
	var idents []identity.Identity
	for rows.Next() {
		var id, vid, dvid, name, version, dir string
		if err := rows.Scan(&id, &vid, &dvid, &name, &version, &dir); err != nil {
			return nil, err
		}
		v, err := semver.StrictNewVersion(version)
		if err != nil {
			return nil, errors.Wrapf(err, "partition %s has invalid version %q", vid, version)
		}
		idents = append(idents, identity.Identity{
			ID:        id,
			VID:       vid,
			Name:      name,
			Version:   *v,
			Kind:      identity.KindPartition,
			Dir:       dir,
			BundleVID: dvid,
		})
	}
	return idents, rows.Err()
}
