// Package syncengine reconciles queued local intent with the remote
// authority. The drain protocol replays the mutation queue front to back;
// the reconciliation protocol folds fresh server reads into the entity
// store without resurrecting entities deleted offline.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/remote"
	"github.com/example/localcal/internal/viewcache"
)

// ErrAuthRequired is returned when a drain halts because the session is no
// longer valid. The queue is preserved for a drain after re-authentication.
var ErrAuthRequired = errors.New("syncengine: remote authority rejected the session")

// ConnectivityProbe reports whether the remote authority is currently
// reachable. Detection itself lives outside the engine.
type ConnectivityProbe func() bool

// Engine orchestrates draining the mutation queue, remapping temporary ids,
// and reconciling server state into the local store.
type Engine struct {
	mu     sync.Mutex
	store  persistence.Store
	remote remote.Client
	cache  *viewcache.Cache
	online ConnectivityProbe
	now    func() time.Time
	logger *slog.Logger
}

// New wires the engine's collaborators.
func New(store persistence.Store, client remote.Client, cache *viewcache.Cache, online ConnectivityProbe, now func() time.Time, logger *slog.Logger) *Engine {
	if online == nil {
		online = func() bool { return true }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		remote: client,
		cache:  cache,
		online: online,
		now:    now,
		logger: logger,
	}
}

// Drain replays the mutation queue against the remote authority, one entry
// at a time in sequence order. An entry is removed only after the remote
// authority has acknowledged it.
//
// Transient failures stop the drain and are absorbed: the queue is left
// intact for the next trigger and no error is returned. A not-found
// response to an update or delete means the end state the user wanted is
// already true, so the entry is dropped and the drain continues. Auth and
// validation failures stop the drain and surface to the caller with the
// queue preserved.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.online() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		entry, err := e.store.PeekOldest(ctx)
		if errors.Is(err, persistence.ErrQueueEmpty) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("peek mutation queue: %w", err)
		}

		err = e.dispatch(ctx, entry)
		if err == nil {
			if err := e.store.Remove(ctx, entry.Seq); err != nil {
				return fmt.Errorf("remove drained entry %d: %w", entry.Seq, err)
			}
			continue
		}

		switch remote.CategoryOf(err) {
		case remote.CategoryNotFound:
			// The target is already absent server-side. Not retryable and
			// not data loss.
			e.logger.Info("dropping mutation for entity absent on server",
				"seq", entry.Seq, "kind", entry.Kind.String(), "entity", entry.Correlation.LocalID)
			if err := e.store.Remove(ctx, entry.Seq); err != nil {
				return fmt.Errorf("remove superseded entry %d: %w", entry.Seq, err)
			}
		case remote.CategoryAuth:
			e.logger.Warn("drain halted: authentication required", "seq", entry.Seq)
			return fmt.Errorf("%w: %v", ErrAuthRequired, err)
		case remote.CategoryValidation:
			e.logger.Error("drain halted: server rejected payload",
				"seq", entry.Seq, "kind", entry.Kind.String(), "error", err)
			return fmt.Errorf("replay entry %d (%s): %w", entry.Seq, entry.Kind, err)
		default:
			e.logger.Debug("drain paused on transient failure",
				"seq", entry.Seq, "kind", entry.Kind.String(), "error", err)
			return nil
		}
	}
}

// dispatch issues the remote call for one queue entry. The switch is the
// single site that maps mutation kinds to transport operations.
func (e *Engine) dispatch(ctx context.Context, entry persistence.MutationEntry) error {
	switch entry.Kind {
	case persistence.MutationCreateCalendar:
		calendar, err := persistence.DecodeCalendarPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		created, err := e.remote.CreateCalendar(ctx, calendar)
		if err != nil {
			return err
		}
		return e.adoptCalendar(ctx, calendar.ID, created)

	case persistence.MutationUpdateCalendar:
		calendar, err := persistence.DecodeCalendarPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		updated, err := e.remote.UpdateCalendar(ctx, calendar)
		if err != nil {
			return err
		}
		return e.adoptCalendar(ctx, calendar.ID, updated)

	case persistence.MutationDeleteCalendar:
		return e.remote.DeleteCalendar(ctx, entry.Correlation.LocalID)

	case persistence.MutationCreateEvent:
		event, err := persistence.DecodeEventPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		created, err := e.remote.CreateEvent(ctx, event)
		if err != nil {
			return err
		}
		return e.adoptEvent(ctx, event.ID, created)

	case persistence.MutationUpdateEvent:
		event, err := persistence.DecodeEventPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		updated, err := e.remote.UpdateEvent(ctx, event)
		if err != nil {
			return err
		}
		return e.adoptEvent(ctx, event.ID, updated)

	case persistence.MutationDeleteEvent:
		return e.remote.DeleteEvent(ctx, entry.Correlation.LocalID)

	case persistence.MutationCreateGroup:
		group, err := persistence.DecodeGroupPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		created, err := e.remote.CreateGroup(ctx, group)
		if err != nil {
			return err
		}
		return e.adoptGroup(ctx, group.ID, created)

	case persistence.MutationUpdateGroup:
		group, err := persistence.DecodeGroupPayload(entry.Payload)
		if err != nil {
			return &remote.Error{Category: remote.CategoryValidation, Message: err.Error()}
		}
		updated, err := e.remote.UpdateGroup(ctx, group)
		if err != nil {
			return err
		}
		return e.adoptGroup(ctx, group.ID, updated)

	case persistence.MutationDeleteGroup:
		return e.remote.DeleteGroup(ctx, entry.Correlation.LocalID)

	default:
		return &remote.Error{Category: remote.CategoryValidation, Message: fmt.Sprintf("unknown mutation kind %d", entry.Kind)}
	}
}

// adoptCalendar remaps a temporary id to the server-assigned one and folds
// the canonical server copy into the store.
func (e *Engine) adoptCalendar(ctx context.Context, localID string, server persistence.Calendar) error {
	if err := e.remapID(ctx, localID, server.ID); err != nil {
		return err
	}
	existing, err := e.store.GetCalendar(ctx, server.ID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	merged := server
	merged.CreatedAt = existing.CreatedAt
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = e.now()
	}
	merged.UpdatedAt = e.now()
	return e.store.UpsertCalendar(ctx, merged)
}

// adoptEvent is adoptCalendar for events. Installed reminder trigger ids
// are device-local and survive the server copy.
func (e *Engine) adoptEvent(ctx context.Context, localID string, server persistence.Event) error {
	if err := e.remapID(ctx, localID, server.ID); err != nil {
		return err
	}
	existing, err := e.store.GetEvent(ctx, server.ID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	merged := server
	merged.ReminderTriggerIDs = existing.ReminderTriggerIDs
	merged.CreatedAt = existing.CreatedAt
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = e.now()
	}
	merged.UpdatedAt = e.now()
	return e.store.UpsertEvent(ctx, merged)
}

func (e *Engine) adoptGroup(ctx context.Context, localID string, server persistence.Group) error {
	if err := e.remapID(ctx, localID, server.ID); err != nil {
		return err
	}
	existing, err := e.store.GetGroup(ctx, server.ID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	merged := server
	merged.CreatedAt = existing.CreatedAt
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = e.now()
	}
	merged.UpdatedAt = e.now()
	return e.store.UpsertGroup(ctx, merged)
}

// absorbTransient swallows retryable failures so periodic sync never
// surfaces them; everything else propagates.
func (e *Engine) absorbTransient(op string, err error) error {
	if remote.IsTransient(err) {
		e.logger.Debug("sync paused on transient failure", "op", op, "error", err)
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// remapID applies the durable remap first; only once both the entity tables
// and the queue have moved to the server id is the in-memory view touched.
func (e *Engine) remapID(ctx context.Context, localID, serverID string) error {
	if !persistence.IsLocalID(localID) || localID == serverID {
		return nil
	}
	if err := e.store.RemapLocalID(ctx, localID, serverID); err != nil {
		return fmt.Errorf("remap %s: %w", localID, err)
	}
	if e.cache != nil {
		e.cache.RemapID(localID, serverID)
	}
	return nil
}
