package spanstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDeleteAll
)

// op is one change made inside a write transaction, replayed against
// subscription snapshots after commit.
type op struct {
	kind   opKind
	rowid  int64
	record Record
	fields []string
}

// Tx is a write transaction. It is only valid inside the function passed
// to Store.Write and must not be retained.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	ops []op
}

// Write runs fn in a single write transaction. If fn returns an error,
// or the commit fails, nothing is persisted and no change is published.
//
// Constraint failures are returned as *ConstraintError; every other
// failure is wrapped in *TxError.
func (s *Store) Write(ctx context.Context, fn func(*Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback() // no-op if committed

	tx := &Tx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		s.debug.LogTx("write", len(tx.ops), time.Since(start), err)
		return abortErr("write", err)
	}
	if err := sqlTx.Commit(); err != nil {
		s.debug.LogTx("commit", len(tx.ops), time.Since(start), err)
		return abortErr("commit", err)
	}

	s.commits.Add(1)
	s.debug.LogTx("write", len(tx.ops), time.Since(start), nil)
	if len(tx.ops) > 0 {
		s.feed.publish(tx.ops)
	}
	return nil
}

func abortErr(op string, err error) error {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return err
	}
	var te *TxError
	if errors.As(err, &te) {
		return err
	}
	return &TxError{Op: op, Err: err}
}

// Insert adds a record. An empty ID is replaced with a fresh one.
// A duplicate ID fails with *ConstraintError.
func (t *Tx) Insert(r Record) (*Record, error) {
	if r.ID == "" {
		r.ID = NewID()
	}
	rec := r.normalized()

	embedded, err := encodeEmbedded(rec.Embedded)
	if err != nil {
		return nil, err
	}

	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (id, started_at, ended_at, title, account_id, embedded)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.StartedAt.UnixMicro(),
		rec.EndedAt.UnixMicro(),
		rec.Title,
		nullAccount(rec.AccountID),
		embedded,
	)
	if isConstraint(err) {
		return nil, &ConstraintError{Field: FieldID, Value: rec.ID, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	t.ops = append(t.ops, op{kind: opInsert, rowid: rowid, record: rec.Clone()})
	out := rec.Clone()
	return &out, nil
}

// Update replaces every mutable field of the stored record with the same
// ID. Returns ErrNotFound if there is none. An update that changes
// nothing is not reported to subscribers.
func (t *Tx) Update(r Record) (*Record, error) {
	prev, rowid, err := t.get(r.ID)
	if err != nil {
		return nil, err
	}
	rec := r.normalized()

	fields := changedFields(*prev, rec)
	if len(fields) == 0 {
		return prev, nil
	}

	embedded, err := encodeEmbedded(rec.Embedded)
	if err != nil {
		return nil, err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		UPDATE records
		SET started_at = ?, ended_at = ?, title = ?, account_id = ?, embedded = ?
		WHERE id = ?
	`,
		rec.StartedAt.UnixMicro(),
		rec.EndedAt.UnixMicro(),
		rec.Title,
		nullAccount(rec.AccountID),
		embedded,
		rec.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	t.ops = append(t.ops, op{kind: opUpdate, rowid: rowid, record: rec.Clone(), fields: fields})
	out := rec.Clone()
	return &out, nil
}

// Get reads a record as seen by this transaction.
func (t *Tx) Get(id string) (*Record, error) {
	rec, _, err := t.get(id)
	return rec, err
}

func (t *Tx) get(id string) (*Record, int64, error) {
	rec, rowid, err := scanRecord(t.tx.QueryRowContext(t.ctx, selectRecord+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get record: %w", err)
	}
	return rec, rowid, nil
}

// DeleteAll removes every record and returns how many were removed.
func (t *Tx) DeleteAll() (int, error) {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM records")
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	if n > 0 {
		t.ops = append(t.ops, op{kind: opDeleteAll})
	}
	return int(n), nil
}
