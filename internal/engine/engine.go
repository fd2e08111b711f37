// Package engine implements the offline-first reconciliation core: it drains
// the mutation queue against the remote authority, detects divergence, and
// surfaces conflicts for explicit resolution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/classkeeper/classkeeper/internal/errs"
	"github.com/classkeeper/classkeeper/internal/metrics"
	"github.com/classkeeper/classkeeper/internal/model"
	"github.com/classkeeper/classkeeper/internal/remote"
	"github.com/classkeeper/classkeeper/internal/store"
)

// Connectivity is the slice of the connectivity monitor the engine needs.
type Connectivity interface {
	// Online reports the current connectivity state.
	Online() bool
	// OnChange registers a hook fired on each online/offline transition.
	OnChange(fn func(online bool))
}

// Engine owns all mutable sync state behind a single mutex: one writer, no
// module-level globals. UI layers observe via Subscribe rather than sharing
// state.
type Engine struct {
	store  store.Store
	remote remote.Authority
	conn   Connectivity
	log    *zap.Logger
	met    *metrics.Metrics
	userID string
	now    func() time.Time

	mu        sync.Mutex
	syncing   bool
	lastSync  time.Time
	syncErrs  []string
	conflicts []model.Conflict // detection order, keyed by record id
	pending   int
	subs      []func(model.SyncStatus)
}

// Option customizes engine construction.
type Option func(*Engine)

// WithLogger sets the structured logger (default: no-op).
func WithLogger(log *zap.Logger) Option { return func(e *Engine) { e.log = log } }

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.met = m } }

// WithUserID scopes the submission refresh to the given student.
func WithUserID(id string) Option { return func(e *Engine) { e.userID = id } }

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New builds an engine over a local store and remote authority and wires the
// connectivity-regained hook: every offline-to-online transition triggers one
// sync attempt.
func New(ctx context.Context, st store.Store, auth remote.Authority, conn Connectivity, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:  st,
		remote: auth,
		conn:   conn,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	n, err := st.QueueLen(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue len: %w", err)
	}
	e.mu.Lock()
	e.pending = n
	e.mu.Unlock()
	e.met.SetPending(n)

	conn.OnChange(func(online bool) {
		e.publish()
		if online {
			_ = e.SyncNow(context.Background())
		}
	})
	return e, nil
}

// Subscribe registers a callback invoked with a status snapshot after each
// pass, after local writes, and on connectivity changes.
func (e *Engine) Subscribe(fn func(model.SyncStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Status returns the current read model.
func (e *Engine) Status() model.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// Conflicts returns the open conflicts in detection order.
func (e *Engine) Conflicts() []model.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Conflict(nil), e.conflicts...)
}

// SaveOffline is the application's write path: an optimistic local write plus
// an enqueued mutation, followed by an opportunistic pass when online. While
// offline it touches only the local store.
func (e *Engine) SaveOffline(ctx context.Context, t model.RecordType, r model.Record, action model.Action) error {
	if !t.Valid() {
		return fmt.Errorf("validation: unknown record type %q", t)
	}
	if action != model.ActionCreate && action != model.ActionUpdate {
		return fmt.Errorf("validation: unknown action %q", action)
	}
	if r.ID == "" {
		return errors.New("validation: empty record id")
	}

	if r.LastModified.IsZero() {
		r.LastModified = e.now()
	}
	r.Synced = false
	if err := e.store.SaveRecord(ctx, t, r); err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	if err := e.store.Enqueue(ctx, model.QueueItem{
		ID:         id,
		RecordType: t,
		Action:     action,
		Payload:    r.Clone(),
		EnqueuedAt: e.now(),
	}); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	e.refreshPending(ctx)
	e.publish()

	if e.conn.Online() {
		return e.SyncNow(ctx)
	}
	return nil
}

// GetOffline reads records from the local store regardless of connectivity.
func (e *Engine) GetOffline(ctx context.Context, t model.RecordType, f model.Filter) ([]model.Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("validation: unknown record type %q", t)
	}
	return e.store.GetRecords(ctx, t, f)
}

// SyncNow runs one bounded reconciliation pass: drain the queue in enqueue
// order with independent per-item attempts, then refresh local state from the
// remote collections. It is a no-op while offline or when a pass is already
// running. Per-item failures never propagate; they are recorded in the
// status' SyncErrors and the items stay queued for the next pass.
func (e *Engine) SyncNow(ctx context.Context) error {
	e.mu.Lock()
	if !e.conn.Online() || e.syncing {
		e.mu.Unlock()
		return nil
	}
	e.syncing = true
	e.syncErrs = nil
	e.mu.Unlock()
	e.publish()

	items, err := e.store.ListQueue(ctx)
	if err != nil {
		e.recordError(fmt.Sprintf("list queue: %v", err))
	}
	for _, item := range items {
		e.processItem(ctx, item)
	}
	e.refreshFromRemote(ctx)
	e.refreshPending(ctx)

	e.mu.Lock()
	e.syncing = false
	e.lastSync = e.now()
	nErrs := len(e.syncErrs)
	nConf := len(e.conflicts)
	e.mu.Unlock()

	e.met.PassCompleted(nErrs)
	e.met.SetConflicts(nConf)
	e.log.Info("sync pass complete",
		zap.Int("items", len(items)),
		zap.Int("errors", nErrs),
		zap.Int("conflicts", nConf),
	)
	e.publish()
	return nil
}

// processItem attempts one queued mutation. A create racing an existing remote
// record is always a conflict; an update loses to a strictly newer remote
// last_modified (local wins the tie).
func (e *Engine) processItem(ctx context.Context, item model.QueueItem) {
	cur, err := e.remote.Get(ctx, item.RecordType, item.Payload.ID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		e.recordError(fmt.Sprintf("%s %s %s: %v", item.Action, item.RecordType, item.Payload.ID, err))
		return
	}
	exists := err == nil

	switch item.Action {
	case model.ActionCreate:
		if exists {
			e.addConflict(model.Conflict{
				ID:             item.Payload.ID,
				Type:           item.RecordType,
				LocalData:      item.Payload.Clone(),
				ServerData:     cur.Clone(),
				ConflictFields: createConflictFields(item.RecordType),
			})
			return
		}
		if _, err := e.remote.Insert(ctx, item.RecordType, item.Payload); err != nil {
			e.recordError(fmt.Sprintf("create %s %s: %v", item.RecordType, item.Payload.ID, err))
			return
		}
		e.confirm(ctx, item)

	case model.ActionUpdate:
		if exists && cur.LastModified.After(item.Payload.LastModified) {
			e.addConflict(model.Conflict{
				ID:             item.Payload.ID,
				Type:           item.RecordType,
				LocalData:      item.Payload.Clone(),
				ServerData:     cur.Clone(),
				ConflictFields: diffFields(item.Payload, *cur),
			})
			return
		}
		if _, err := e.remote.Update(ctx, item.RecordType, item.Payload); err != nil {
			e.recordError(fmt.Sprintf("update %s %s: %v", item.RecordType, item.Payload.ID, err))
			return
		}
		e.confirm(ctx, item)

	default:
		e.recordError(fmt.Sprintf("queue item %s: unknown action %q", item.ID, item.Action))
	}
}

// confirm marks a record synced locally and removes its queue item. A conflict
// left over from an earlier pass for the same record is now moot.
func (e *Engine) confirm(ctx context.Context, item model.QueueItem) {
	rec := item.Payload.Clone()
	rec.Synced = true
	if err := e.store.SaveRecord(ctx, item.RecordType, rec); err != nil {
		e.recordError(fmt.Sprintf("mark synced %s %s: %v", item.RecordType, item.Payload.ID, err))
		return
	}
	if err := e.store.Dequeue(ctx, item.ID); err != nil && !errors.Is(err, errs.ErrQueueItemNotFound) {
		e.recordError(fmt.Sprintf("dequeue %s: %v", item.ID, err))
	}
	e.removeConflict(item.Payload.ID)
}

// refreshFromRemote performs the unconditional bulk remote-to-local refresh.
// Records that are still queued or conflicted are not clobbered.
func (e *Engine) refreshFromRemote(ctx context.Context) {
	skip := make(map[string]bool)
	if items, err := e.store.ListQueue(ctx); err != nil {
		e.recordError(fmt.Sprintf("list queue: %v", err))
	} else {
		for _, it := range items {
			skip[refreshKey(it.RecordType, it.Payload.ID)] = true
		}
	}
	e.mu.Lock()
	for _, c := range e.conflicts {
		skip[refreshKey(c.Type, c.ID)] = true
	}
	e.mu.Unlock()

	for _, t := range []model.RecordType{model.TypeAssignment, model.TypeSubmission} {
		var f model.Filter
		if t == model.TypeSubmission && e.userID != "" {
			f = model.Filter{"student_id": e.userID}
		}
		recs, err := e.remote.List(ctx, t, f)
		if err != nil {
			e.recordError(fmt.Sprintf("refresh %s: %v", t, err))
			continue
		}
		for _, r := range recs {
			if skip[refreshKey(t, r.ID)] {
				continue
			}
			r.Synced = true
			if err := e.store.SaveRecord(ctx, t, r); err != nil {
				e.recordError(fmt.Sprintf("refresh %s %s: %v", t, r.ID, err))
			}
		}
	}
}

func refreshKey(t model.RecordType, id string) string { return string(t) + "/" + id }

func (e *Engine) refreshPending(ctx context.Context) {
	n, err := e.store.QueueLen(ctx)
	if err != nil {
		e.recordError(fmt.Sprintf("queue len: %v", err))
		return
	}
	e.mu.Lock()
	e.pending = n
	e.mu.Unlock()
	e.met.SetPending(n)
}

func (e *Engine) recordError(msg string) {
	e.log.Warn("sync error", zap.String("err", msg))
	e.mu.Lock()
	e.syncErrs = append(e.syncErrs, msg)
	e.mu.Unlock()
}

// addConflict inserts or replaces the conflict for a record id.
func (e *Engine) addConflict(c model.Conflict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.conflicts {
		if e.conflicts[i].ID == c.ID {
			e.conflicts[i] = c
			return
		}
	}
	e.conflicts = append(e.conflicts, c)
}

func (e *Engine) removeConflict(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.conflicts {
		if e.conflicts[i].ID == id {
			e.conflicts = append(e.conflicts[:i], e.conflicts[i+1:]...)
			return
		}
	}
}

func (e *Engine) statusLocked() model.SyncStatus {
	return model.SyncStatus{
		IsOnline:     e.conn.Online(),
		IsSyncing:    e.syncing,
		LastSyncTime: e.lastSync,
		PendingItems: e.pending,
		SyncErrors:   append([]string(nil), e.syncErrs...),
	}
}

func (e *Engine) publish() {
	e.mu.Lock()
	st := e.statusLocked()
	subs := append(([]func(model.SyncStatus))(nil), e.subs...)
	e.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}
