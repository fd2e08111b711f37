// Package remote defines the client interface to the remote authority.
package remote

import (
	"context"

	"github.com/classkeeper/classkeeper/internal/model"
)

// Authority is the system of record for persisted data. Implementations map
// "record absent" to errs.ErrNotFound, which is a meaningful outcome for the
// sync engine, distinct from transport or service failures.
type Authority interface {
	// Get returns a single record by id, or errs.ErrNotFound.
	Get(ctx context.Context, t model.RecordType, id string) (*model.Record, error)

	// Insert creates a record and returns the stored form.
	Insert(ctx context.Context, t model.RecordType, r model.Record) (*model.Record, error)

	// Update upserts a record by id and returns the stored form.
	Update(ctx context.Context, t model.RecordType, r model.Record) (*model.Record, error)

	// List returns all records of a type matching the optional filter.
	List(ctx context.Context, t model.RecordType, f model.Filter) ([]model.Record, error)
}
