// Package sqlite contains the SQLite implementation of the durable local store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "modernc.org/sqlite"

	"github.com/classkeeper/classkeeper/internal/errs"
	"github.com/classkeeper/classkeeper/internal/migrate"
	"github.com/classkeeper/classkeeper/internal/model"
)

// Store implements store.Store on an embedded SQLite database. The driver is
// pure Go, so the store works anywhere the client runs, with no cgo.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer: the engine serializes access anyway, and one connection
	// sidesteps SQLITE_BUSY between the pool's connections.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA synchronous=NORMAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA foreign_keys=ON`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := migrate.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRecord upserts a record by (type, id).
func (s *Store) SaveRecord(ctx context.Context, t model.RecordType, r model.Record) error {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	const q = `
INSERT INTO records (record_type, id, fields, last_modified, synced)
VALUES (?,?,?,?,?)
ON CONFLICT (record_type, id) DO UPDATE SET
  fields=excluded.fields, last_modified=excluded.last_modified, synced=excluded.synced`
	_, err = s.db.ExecContext(ctx, q, string(t), r.ID, string(fields),
		r.LastModified.UTC().Format(time.RFC3339Nano), boolInt(r.Synced))
	return err
}

// GetRecord returns one record or errs.ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, t model.RecordType, id string) (*model.Record, error) {
	const q = `SELECT id, fields, last_modified, synced FROM records WHERE record_type=? AND id=?`
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, string(t), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRecords returns all records of a type matching the optional filter,
// ordered by id for stable output.
func (s *Store) GetRecords(ctx context.Context, t model.RecordType, f model.Filter) ([]model.Record, error) {
	const q = `SELECT id, fields, last_modified, synced FROM records WHERE record_type=? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if !f.Matches(*r) {
			continue
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Enqueue adds a pending mutation, superseding any existing item for the same
// (type, record id). The replacement takes the queue tail.
func (s *Store) Enqueue(ctx context.Context, item model.QueueItem) (err error) {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	const del = `DELETE FROM queue WHERE record_type=? AND record_id=?`
	if _, err = tx.ExecContext(ctx, del, string(item.RecordType), item.Payload.ID); err != nil {
		return err
	}
	const ins = `
INSERT INTO queue (id, record_type, record_id, action, payload, enqueued_at)
VALUES (?,?,?,?,?,?)`
	_, err = tx.ExecContext(ctx, ins, item.ID.String(), string(item.RecordType),
		item.Payload.ID, string(item.Action), string(payload),
		item.EnqueuedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Dequeue removes a pending item by its own id.
func (s *Store) Dequeue(ctx context.Context, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id=?`, itemID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrQueueItemNotFound
	}
	return nil
}

// DequeueRecord removes the pending item for a (type, record id), if any.
func (s *Store) DequeueRecord(ctx context.Context, t model.RecordType, recordID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue WHERE record_type=? AND record_id=?`, string(t), recordID)
	return err
}

// ListQueue returns all pending items in enqueue order.
func (s *Store) ListQueue(ctx context.Context) ([]model.QueueItem, error) {
	const q = `SELECT id, record_type, action, payload, enqueued_at FROM queue ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueItem
	for rows.Next() {
		var (
			id, rt, action, payload, at string
			item                        model.QueueItem
		)
		if err := rows.Scan(&id, &rt, &action, &payload, &at); err != nil {
			return nil, err
		}
		if item.ID, err = uuid.FromString(id); err != nil {
			return nil, fmt.Errorf("queue item id %q: %w", id, err)
		}
		item.RecordType = model.RecordType(rt)
		item.Action = model.Action(action)
		if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
			return nil, fmt.Errorf("queue item %s payload: %w", id, err)
		}
		if item.EnqueuedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("queue item %s enqueued_at: %w", id, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// QueueLen returns the number of pending items.
func (s *Store) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue`).Scan(&n)
	return n, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner) (*model.Record, error) {
	var (
		r          model.Record
		fields, lm string
		synced     int
	)
	if err := row.Scan(&r.ID, &fields, &lm, &synced); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return nil, fmt.Errorf("record %s fields: %w", r.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, lm)
	if err != nil {
		return nil, fmt.Errorf("record %s last_modified: %w", r.ID, err)
	}
	r.LastModified = t
	r.Synced = synced != 0
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
