package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/classkeeper/classkeeper/internal/errs"
	"github.com/classkeeper/classkeeper/internal/model"
)

// Resolve applies a user- or policy-selected resolution to an open conflict.
//
//   - local: the local snapshot is written to the remote authority, then
//     stored locally as synced.
//   - server: the server snapshot is stored locally as synced; nothing is
//     sent to the remote.
//   - merge: the caller-supplied payload is written to both sides; the engine
//     never merges fields itself.
//
// On success the conflict is removed and any corresponding queue item is
// dequeued. A failed remote write leaves the conflict open and returns the
// error so the caller can retry.
func (e *Engine) Resolve(ctx context.Context, conflictID string, res model.Resolution, merged *model.Record) error {
	e.mu.Lock()
	var conf *model.Conflict
	for i := range e.conflicts {
		if e.conflicts[i].ID == conflictID {
			c := e.conflicts[i]
			conf = &c
			break
		}
	}
	e.mu.Unlock()
	if conf == nil {
		return fmt.Errorf("resolve %s: %w", conflictID, errs.ErrConflictNotFound)
	}

	var final model.Record
	switch res {
	case model.ResolveLocal:
		final = conf.LocalData.Clone()
	case model.ResolveServer:
		final = conf.ServerData.Clone()
	case model.ResolveMerge:
		if merged == nil {
			return errors.New("validation: merge resolution requires a payload")
		}
		final = merged.Clone()
		final.ID = conf.ID
		if final.LastModified.IsZero() {
			final.LastModified = e.now()
		}
	default:
		return fmt.Errorf("validation: unknown resolution %q", res)
	}

	if res != model.ResolveServer {
		if _, err := e.remote.Update(ctx, conf.Type, final); err != nil {
			return fmt.Errorf("resolve %s: remote write: %w", conflictID, err)
		}
	}

	final.Synced = true
	if err := e.store.SaveRecord(ctx, conf.Type, final); err != nil {
		return fmt.Errorf("resolve %s: local write: %w", conflictID, err)
	}
	if err := e.store.DequeueRecord(ctx, conf.Type, conf.ID); err != nil {
		return fmt.Errorf("resolve %s: dequeue: %w", conflictID, err)
	}

	e.removeConflict(conflictID)
	e.mu.Lock()
	nConf := len(e.conflicts)
	e.mu.Unlock()
	e.met.SetConflicts(nConf)
	e.refreshPending(ctx)

	e.log.Info("conflict resolved",
		zap.String("id", conflictID),
		zap.String("type", string(conf.Type)),
		zap.String("resolution", string(res)),
	)
	e.publish()
	return nil
}
