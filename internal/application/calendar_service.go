package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/reminder"
	"github.com/example/localcal/internal/remote"
	"github.com/example/localcal/internal/syncengine"
	"github.com/example/localcal/internal/viewcache"
)

// CalendarInput carries the caller-supplied fields of a calendar mutation.
type CalendarInput struct {
	OwnerUserID *string
	GroupID     *string
	Title       string
	Color       string
	Public      bool
}

// CalendarService is the mutation entry point for calendars.
type CalendarService struct {
	mu        sync.Mutex
	store     persistence.Store
	cache     *viewcache.Cache
	remote    remote.Client
	engine    *syncengine.Engine
	reminders *reminder.Scheduler
	online    syncengine.ConnectivityProbe
	newID     func() string
	now       func() time.Time
	logger    *slog.Logger
}

// NewCalendarService wires dependencies for calendar operations.
func NewCalendarService(store persistence.Store, cache *viewcache.Cache, client remote.Client, engine *syncengine.Engine, reminders *reminder.Scheduler, online syncengine.ConnectivityProbe, newID func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if online == nil {
		online = func() bool { return true }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarService{
		store:     store,
		cache:     cache,
		remote:    client,
		engine:    engine,
		reminders: reminders,
		online:    online,
		newID:     newID,
		now:       now,
		logger:    logger,
	}
}

func validateCalendarInput(input CalendarInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Title) == "" {
		vErr.Add("title", "must not be empty")
	}
	if input.OwnerUserID != nil && input.GroupID != nil {
		vErr.Add("owner", "a calendar belongs to a user or to a group, not both")
	}
}

// CreateCalendar creates a calendar locally and hands it to the remote
// authority, or queues the creation while offline.
func (s *CalendarService) CreateCalendar(ctx context.Context, input CalendarInput) (persistence.Calendar, error) {
	vErr := &ValidationError{}
	validateCalendarInput(input, vErr)
	if vErr.HasErrors() {
		return persistence.Calendar{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	calendar := persistence.Calendar{
		ID:          NewLocalID(s.newID),
		OwnerUserID: input.OwnerUserID,
		GroupID:     input.GroupID,
		Title:       strings.TrimSpace(input.Title),
		Color:       input.Color,
		Public:      input.Public,
		InviteCode:  newInviteCode(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	token := s.cache.ApplyOptimistic(viewcache.KeyCalendars, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.CalendarList)
		return list.Upsert(calendar)
	})
	if err := s.store.UpsertCalendar(ctx, calendar); err != nil {
		s.cache.Rollback(token)
		return persistence.Calendar{}, fmt.Errorf("store calendar: %w", err)
	}

	commit := func() (persistence.Calendar, error) {
		seq, err := s.store.Enqueue(ctx, persistence.MutationCreateCalendar, mustPayload(calendar), persistence.Correlation{LocalID: calendar.ID})
		if err != nil {
			s.cache.Rollback(token)
			_ = s.store.DeleteCalendar(ctx, calendar.ID)
			return persistence.Calendar{}, fmt.Errorf("queue calendar creation: %w", err)
		}
		s.logger.Debug("queued calendar creation", "seq", seq, "calendar", calendar.ID)
		s.settle(token)
		return calendar, nil
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		s.cache.Rollback(token)
		_ = s.store.DeleteCalendar(ctx, calendar.ID)
		return persistence.Calendar{}, err
	}
	if !direct {
		return commit()
	}

	created, err := s.remote.CreateCalendar(ctx, calendar)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		s.cache.Rollback(token)
		_ = s.store.DeleteCalendar(ctx, calendar.ID)
		return persistence.Calendar{}, err
	}

	if err := s.adopt(ctx, calendar.ID, created); err != nil {
		return persistence.Calendar{}, err
	}
	s.settle(token)
	stored, err := s.store.GetCalendar(ctx, created.ID)
	if err != nil {
		return created, nil
	}
	return stored, nil
}

// UpdateCalendar applies title/color/visibility edits.
func (s *CalendarService) UpdateCalendar(ctx context.Context, id string, input CalendarInput) (persistence.Calendar, error) {
	vErr := &ValidationError{}
	validateCalendarInput(input, vErr)
	if vErr.HasErrors() {
		return persistence.Calendar{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetCalendar(ctx, id)
	if err != nil {
		return persistence.Calendar{}, err
	}

	updated := previous
	updated.Title = strings.TrimSpace(input.Title)
	updated.Color = input.Color
	updated.Public = input.Public
	updated.UpdatedAt = s.now()

	token := s.cache.ApplyOptimistic(viewcache.KeyCalendars, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.CalendarList)
		return list.Upsert(updated)
	})
	if err := s.store.UpsertCalendar(ctx, updated); err != nil {
		s.cache.Rollback(token)
		return persistence.Calendar{}, fmt.Errorf("store calendar: %w", err)
	}

	revert := func(cause error) (persistence.Calendar, error) {
		s.cache.Rollback(token)
		_ = s.store.UpsertCalendar(ctx, previous)
		return persistence.Calendar{}, cause
	}

	commit := func() (persistence.Calendar, error) {
		_, err := s.store.Enqueue(ctx, persistence.MutationUpdateCalendar, mustPayload(updated), persistence.Correlation{LocalID: updated.ID})
		if err != nil {
			return revert(fmt.Errorf("queue calendar update: %w", err))
		}
		s.settle(token)
		return updated, nil
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		return revert(err)
	}
	if !direct {
		return commit()
	}

	serverCopy, err := s.remote.UpdateCalendar(ctx, updated)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		if remote.CategoryOf(err) == remote.CategoryNotFound {
			// Gone on the server already; local absence will follow on the
			// next reconciliation. Treat the edit as rejected.
			return revert(err)
		}
		return revert(err)
	}
	if err := s.adopt(ctx, updated.ID, serverCopy); err != nil {
		return persistence.Calendar{}, err
	}
	s.settle(token)
	return s.store.GetCalendar(ctx, serverCopy.ID)
}

// DeleteCalendar removes a calendar and, by cascade, its events. The
// cascaded events' installed notification triggers are cancelled once the
// deletion is settled.
func (s *CalendarService) DeleteCalendar(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetCalendar(ctx, id)
	if err != nil {
		return err
	}
	doomed, err := s.store.ListEvents(ctx, persistence.EventFilter{CalendarIDs: []string{id}})
	if err != nil {
		return err
	}

	token := s.cache.ApplyOptimistic(viewcache.KeyCalendars, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.CalendarList)
		return list.Remove(id)
	})
	if err := s.store.DeleteCalendar(ctx, id); err != nil {
		s.cache.Rollback(token)
		return fmt.Errorf("delete calendar: %w", err)
	}
	s.cache.Invalidate(viewcache.KeyEventsForCalendar(id))

	revert := func(cause error) error {
		s.cache.Rollback(token)
		_ = s.store.UpsertCalendar(ctx, previous)
		return cause
	}

	finish := func() error {
		s.settle(token)
		cancelCascadedReminders(ctx, s.reminders, doomed, s.logger)
		return nil
	}

	commit := func() error {
		_, err := s.store.Enqueue(ctx, persistence.MutationDeleteCalendar, nil, persistence.Correlation{LocalID: id})
		if err != nil {
			return revert(fmt.Errorf("queue calendar deletion: %w", err))
		}
		return finish()
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		return revert(err)
	}
	if !direct {
		return commit()
	}

	if err := s.remote.DeleteCalendar(ctx, id); err != nil {
		switch {
		case remote.IsTransient(err):
			return commit()
		case remote.CategoryOf(err) == remote.CategoryNotFound:
			// Already absent server-side, which is the end state the user
			// asked for.
		default:
			return revert(err)
		}
	}
	return finish()
}

// ListCalendars serves the calendar collection: cache first, then the
// entity store, refreshing from the remote authority when reachable.
func (s *CalendarService) ListCalendars(ctx context.Context) ([]persistence.Calendar, error) {
	if v, ok := s.cache.Read(viewcache.KeyCalendars); ok {
		if list, _ := v.(*viewcache.CalendarList); list != nil {
			return list.Calendars, nil
		}
	}
	if s.online() && s.engine != nil {
		calendars, err := s.engine.ReconcileCalendars(ctx)
		if err == nil {
			return calendars, nil
		}
		if !remote.IsTransient(err) && !errors.Is(err, syncengine.ErrAuthRequired) {
			return nil, err
		}
		s.logger.Debug("remote refresh unavailable, serving local state", "error", err)
	}
	calendars, err := s.store.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Put(viewcache.KeyCalendars, &viewcache.CalendarList{Calendars: calendars})
	return calendars, nil
}

// canDispatchDirectly reports whether a mutation may call the remote
// authority inline: the device is online and no earlier queued intent is
// waiting, so queue order cannot be violated.
func (s *CalendarService) canDispatchDirectly(ctx context.Context) (bool, error) {
	if !s.online() {
		return false, nil
	}
	pending, err := hasPendingMutations(ctx, s.store)
	if err != nil {
		return false, err
	}
	return !pending, nil
}

// adopt folds the canonical server copy back into local state, remapping a
// temporary id when the server assigned a new one.
func (s *CalendarService) adopt(ctx context.Context, localID string, server persistence.Calendar) error {
	if persistence.IsLocalID(localID) && localID != server.ID {
		if err := s.store.RemapLocalID(ctx, localID, server.ID); err != nil {
			return err
		}
		s.cache.RemapID(localID, server.ID)
	}
	merged := server
	merged.CreatedAt = s.now()
	if existing, err := s.store.GetCalendar(ctx, server.ID); err == nil {
		merged.CreatedAt = existing.CreatedAt
	}
	merged.UpdatedAt = s.now()
	return s.store.UpsertCalendar(ctx, merged)
}

// settle releases the rollback snapshot and invalidates the query key so
// the next read reconciles from the entity store instead of trusting the
// hand-patched projection.
func (s *CalendarService) settle(token viewcache.Token) {
	s.cache.Release(token)
	s.cache.Invalidate(viewcache.KeyCalendars)
}

func mustPayload(v any) []byte {
	b, err := persistence.EncodePayload(v)
	if err != nil {
		// Entities are plain structs; encoding cannot fail for them.
		panic(err)
	}
	return b
}
