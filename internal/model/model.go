// Package model defines domain entities shared by the store, remote client and sync engine.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// RecordType identifies which synced collection a record belongs to.
type RecordType string

const (
	TypeAssignment RecordType = "assignment"
	TypeSubmission RecordType = "submission"
)

// Valid reports whether the record type is one of the known collections.
func (t RecordType) Valid() bool {
	return t == TypeAssignment || t == TypeSubmission
}

// Action is the kind of pending local mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Resolution selects how a conflict is settled.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveServer Resolution = "server"
	ResolveMerge  Resolution = "merge"
)

// Record is a single synced entity (assignment or submission). The domain
// payload is an opaque field bag as far as sync is concerned; only
// LastModified and a fixed watch-list of field names participate in
// divergence detection.
type Record struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields"`
	LastModified time.Time      `json:"last_modified"`
	Synced       bool           `json:"synced"` // local-only; never sent to remote
}

// Clone returns a copy with its own field bag. Copying one level down is
// sufficient because sync never mutates nested values in place.
func (r Record) Clone() Record {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// QueueItem is one pending local mutation awaiting reconciliation.
type QueueItem struct {
	ID         uuid.UUID
	RecordType RecordType
	Action     Action
	Payload    Record // snapshot at enqueue time
	EnqueuedAt time.Time
}

// Conflict is a detected, unresolved divergence between the local and remote
// versions of a record. Its ID equals the conflicting record's ID.
type Conflict struct {
	ID             string
	Type           RecordType
	LocalData      Record
	ServerData     Record
	ConflictFields []string
}

// SyncStatus is the UI-facing read model, rebuilt on every pass and on
// connectivity changes. SyncErrors holds failures from the most recent pass
// only.
type SyncStatus struct {
	IsOnline     bool
	IsSyncing    bool
	LastSyncTime time.Time
	PendingItems int
	SyncErrors   []string
}

// Filter is an optional field-equality match applied to record listings.
// A nil or empty filter matches everything.
type Filter map[string]any

// Matches reports whether the record satisfies every filter entry.
func (f Filter) Matches(r Record) bool {
	for k, want := range f {
		if r.Fields[k] != want {
			return false
		}
	}
	return true
}
