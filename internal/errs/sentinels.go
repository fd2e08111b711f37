// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/remote/sync layers.
var (
	// ErrNotFound indicates the requested record does not exist. For remote
	// lookups this is a meaningful outcome (drives create-vs-update
	// branching), not a transport failure.
	ErrNotFound = errors.New("not found")

	// ErrOffline indicates an operation that requires connectivity was
	// attempted while offline.
	ErrOffline = errors.New("offline")

	// ErrSyncInProgress indicates a sync pass is already running; a new
	// trigger is rejected, not queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrConflictNotFound indicates a resolution referenced an unknown or
	// already-resolved conflict.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrQueueItemNotFound indicates a dequeue for an id that is not pending.
	ErrQueueItemNotFound = errors.New("queue item not found")
)
