package catalog

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
	"github.com/depotproject/depot/identity"
)

// sqlLedger stores ledger records in the files table, sharing the
// catalog's transaction boundary.
type sqlLedger struct {
	c *SQL
}

var _ Ledger = &sqlLedger{}

const ledgerColumns = "ref, kind, source_id, state, path, size, digest"

func (l *sqlLedger) Install(rec Record) error {
	if err := l.c.begin(); err != nil {
		return err
	}
	existing, err := l.Get(rec.Ref, rec.Kind)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := l.c.q().Insert("files").
			Columns("ref", "kind", "source_id", "state", "path", "size", "digest").
			Values(rec.Ref, string(rec.Kind), rec.SourceID, string(rec.State), rec.Path, rec.Size, string(rec.Digest)).
			Exec()
		return errors.Wrapf(err, "recording %s/%s", rec.Ref, rec.Kind)
	}

	// Never regress the state; a re-install updates everything else.
	state := rec.State
	if existing.State.Rank() > state.Rank() {
		state = existing.State
	}
	_, err = l.c.q().Update("files").
		Set("source_id", rec.SourceID).
		Set("state", string(state)).
		Set("path", rec.Path).
		Set("size", rec.Size).
		Set("digest", string(rec.Digest)).
		Where(sq.Eq{"ref": rec.Ref, "kind": string(rec.Kind)}).
		Exec()
	return errors.Wrapf(err, "updating record %s/%s", rec.Ref, rec.Kind)
}

func (l *sqlLedger) Get(ref string, kind identity.Kind) (*Record, error) {
	row := l.c.q().Select(ledgerColumns).From("files").
		Where(sq.Eq{"ref": ref, "kind": string(kind)}).
		QueryRow()
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching record %s/%s", ref, kind)
	}
	return rec, nil
}

func (l *sqlLedger) ByState(state State) ([]Record, error) {
	return l.query(sq.Eq{"state": string(state)})
}

func (l *sqlLedger) BySource(sourceID string, kinds ...identity.Kind) ([]Record, error) {
	pred := sq.Eq{"source_id": sourceID}
	if len(kinds) > 0 {
		pred["kind"] = kindStrings(kinds)
	}
	return l.query(pred)
}

func (l *sqlLedger) ByRef(ref string) ([]Record, error) {
	return l.query(sq.Eq{"ref": ref})
}

func (l *sqlLedger) SetState(ref string, kind identity.Kind, state State) error {
	existing, err := l.Get(ref, kind)
	if err != nil {
		return err
	}
	if existing == nil {
		return depot.NotFoundError("no ledger record for %s/%s", ref, kind)
	}
	if state.Rank() < existing.State.Rank() {
		return depot.ConflictError("ledger state for %s/%s cannot move from %s back to %s",
			ref, kind, existing.State, state)
	}
	return l.set(ref, kind, state)
}

func (l *sqlLedger) Reset(ref string, kind identity.Kind, state State) error {
	existing, err := l.Get(ref, kind)
	if err != nil {
		return err
	}
	if existing == nil {
		return depot.NotFoundError("no ledger record for %s/%s", ref, kind)
	}
	return l.set(ref, kind, state)
}

func (l *sqlLedger) set(ref string, kind identity.Kind, state State) error {
	if err := l.c.begin(); err != nil {
		return err
	}
	_, err := l.c.q().Update("files").
		Set("state", string(state)).
		Where(sq.Eq{"ref": ref, "kind": string(kind)}).
		Exec()
	return errors.Wrapf(err, "setting state of %s/%s", ref, kind)
}

func (l *sqlLedger) DeleteBySource(sourceID string, kinds ...identity.Kind) error {
	if err := l.c.begin(); err != nil {
		return err
	}
	pred := sq.Eq{"source_id": sourceID}
	if len(kinds) > 0 {
		pred["kind"] = kindStrings(kinds)
	}
	_, err := l.c.q().Delete("files").Where(pred).Exec()
	return errors.Wrapf(err, "deleting records from %s", sourceID)
}

func (l *sqlLedger) DeleteByKind(kinds ...identity.Kind) error {
	if err := l.c.begin(); err != nil {
		return err
	}
	_, err := l.c.q().Delete("files").Where(sq.Eq{"kind": kindStrings(kinds)}).Exec()
	return errors.Wrap(err, "deleting records by kind")
}

func (l *sqlLedger) DeleteRef(ref string) error {
	if err := l.c.begin(); err != nil {
		return err
	}
	_, err := l.c.q().Delete("files").Where(sq.Eq{"ref": ref}).Exec()
	return errors.Wrapf(err, "deleting records for %s", ref)
}

func (l *sqlLedger) query(pred sq.Eq) ([]Record, error) {
	rows, err := l.c.q().Select(ledgerColumns).From("files").
		Where(pred).OrderBy("ref", "kind").Query()
	if err != nil {
		return nil, errors.Wrap(err, "querying ledger")
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var kind, state, dgst string
		if err := rows.Scan(&rec.Ref, &kind, &rec.SourceID, &state, &rec.Path, &rec.Size, &dgst); err != nil {
			return nil, err
		}
		rec.Kind = identity.Kind(kind)
		rec.State = State(state)
		rec.Digest = digest.Digest(dgst)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanRecord(row sq.RowScanner) (*Record, error) {
	var rec Record
	var kind, state, dgst string
	if err := row.Scan(&rec.Ref, &kind, &rec.SourceID, &state, &rec.Path, &rec.Size, &dgst); err != nil {
		return nil, err
	}
	rec.Kind = identity.Kind(kind)
	rec.State = State(state)
	rec.Digest = digest.Digest(dgst)
	return &rec, nil
}

func kindStrings(kinds []identity.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
