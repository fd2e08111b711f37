// Package store defines the durable local store interface implemented by concrete backends.
package store

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/classkeeper/classkeeper/internal/model"
)

// Store provides persistent access to the cached record collections and the
// mutation queue. All state survives process restart. Implementations perform
// no network I/O.
type Store interface {
	// SaveRecord upserts a record by id. Idempotent.
	SaveRecord(ctx context.Context, t model.RecordType, r model.Record) error

	// GetRecord returns a single record or errs.ErrNotFound.
	GetRecord(ctx context.Context, t model.RecordType, id string) (*model.Record, error)

	// GetRecords returns all records of a type matching the optional filter.
	GetRecords(ctx context.Context, t model.RecordType, f model.Filter) ([]model.Record, error)

	// Enqueue adds a pending mutation. Any existing pending item for the same
	// (type, record id) is superseded: the new snapshot replaces it and the
	// item moves to the queue tail.
	Enqueue(ctx context.Context, item model.QueueItem) error

	// Dequeue removes a pending item by its own id; errs.ErrQueueItemNotFound
	// when absent.
	Dequeue(ctx context.Context, itemID uuid.UUID) error

	// DequeueRecord removes the pending item for a (type, record id), if any.
	// No error when nothing is pending.
	DequeueRecord(ctx context.Context, t model.RecordType, recordID string) error

	// ListQueue returns all pending items in enqueue order.
	ListQueue(ctx context.Context) ([]model.QueueItem, error)

	// QueueLen returns the number of pending items.
	QueueLen(ctx context.Context) (int, error)

	// Close releases the underlying storage.
	Close() error
}
