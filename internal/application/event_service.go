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

// EventInput carries the caller-supplied fields of an event mutation.
type EventInput struct {
	CalendarID     string
	Name           string
	Start          time.Time
	End            time.Time
	AllDay         bool
	Location       string
	Description    string
	FirstReminder  *time.Duration
	SecondReminder *time.Duration
	Priority       int
	Recurrence     *persistence.RecurrenceRule
	RecurrenceEnd  *time.Time
	ImageRef       *string
}

// EventService is the mutation entry point for events.
type EventService struct {
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

// NewEventService wires dependencies for event operations.
func NewEventService(store persistence.Store, cache *viewcache.Cache, client remote.Client, engine *syncengine.Engine, reminders *reminder.Scheduler, online syncengine.ConnectivityProbe, newID func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if online == nil {
		online = func() bool { return true }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
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

func validateEventInput(input EventInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Name) == "" {
		vErr.Add("name", "must not be empty")
	}
	if input.CalendarID == "" {
		vErr.Add("calendar_id", "must reference a calendar")
	}
	if input.Start.IsZero() {
		vErr.Add("start", "must be set")
	}
	if !input.End.IsZero() && !input.Start.IsZero() && input.End.Before(input.Start) {
		vErr.Add("end", "must not precede start")
	}
	if input.Recurrence != nil && input.Start.IsZero() {
		vErr.Add("recurrence", "a rule needs a start time to anchor to")
	}
}

// buildEvent assembles the stored event, normalizing the recurrence
// anchor to the UTC start minute and hour.
func (s *EventService) buildEvent(id string, input EventInput, now time.Time) persistence.Event {
	ev := persistence.Event{
		ID:             id,
		CalendarID:     input.CalendarID,
		Name:           strings.TrimSpace(input.Name),
		Start:          input.Start,
		End:            input.End,
		AllDay:         input.AllDay,
		Location:       input.Location,
		Description:    input.Description,
		FirstReminder:  input.FirstReminder,
		SecondReminder: input.SecondReminder,
		Priority:       input.Priority,
		RecurrenceEnd:  input.RecurrenceEnd,
		ImageRef:       input.ImageRef,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.Recurrence != nil {
		rule := *input.Recurrence
		utcStart := input.Start.UTC()
		rule.Minute = utcStart.Minute()
		rule.Hour = utcStart.Hour()
		ev.Recurrence = &rule
	}
	return ev
}

// CreateEvent creates an event against its calendar, queuing while offline.
func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (persistence.Event, error) {
	vErr := &ValidationError{}
	validateEventInput(input, vErr)
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Foreign-key invariant: the owning calendar must exist at commit time.
	if _, err := s.store.GetCalendar(ctx, input.CalendarID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			vErr.Add("calendar_id", "calendar does not exist")
			return persistence.Event{}, vErr
		}
		return persistence.Event{}, err
	}

	event := s.buildEvent(NewLocalID(s.newID), input, s.now())
	key := viewcache.KeyEventsForCalendar(event.CalendarID)

	token := s.cache.ApplyOptimistic(key, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.EventList)
		return list.Upsert(event)
	})
	if err := s.store.UpsertEvent(ctx, event); err != nil {
		s.cache.Rollback(token)
		return persistence.Event{}, fmt.Errorf("store event: %w", err)
	}

	commit := func() (persistence.Event, error) {
		_, err := s.store.Enqueue(ctx, persistence.MutationCreateEvent, mustPayload(event), persistence.Correlation{LocalID: event.ID, CalendarID: event.CalendarID})
		if err != nil {
			s.cache.Rollback(token)
			_ = s.store.DeleteEvent(ctx, event.ID)
			return persistence.Event{}, fmt.Errorf("queue event creation: %w", err)
		}
		s.settle(token, key)
		return s.refreshReminders(ctx, event.ID)
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		s.cache.Rollback(token)
		_ = s.store.DeleteEvent(ctx, event.ID)
		return persistence.Event{}, err
	}
	if !direct {
		return commit()
	}

	created, err := s.remote.CreateEvent(ctx, event)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		s.cache.Rollback(token)
		_ = s.store.DeleteEvent(ctx, event.ID)
		return persistence.Event{}, err
	}
	if err := s.adopt(ctx, event.ID, created); err != nil {
		return persistence.Event{}, err
	}
	s.settle(token, key)
	return s.refreshReminders(ctx, created.ID)
}

// UpdateEvent applies edits to an existing event.
func (s *EventService) UpdateEvent(ctx context.Context, id string, input EventInput) (persistence.Event, error) {
	vErr := &ValidationError{}
	validateEventInput(input, vErr)
	if vErr.HasErrors() {
		return persistence.Event{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	if input.CalendarID != previous.CalendarID {
		if _, err := s.store.GetCalendar(ctx, input.CalendarID); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				vErr.Add("calendar_id", "calendar does not exist")
				return persistence.Event{}, vErr
			}
			return persistence.Event{}, err
		}
	}

	updated := s.buildEvent(id, input, s.now())
	updated.CreatedAt = previous.CreatedAt
	updated.SuppressedDates = previous.SuppressedDates
	updated.ReminderTriggerIDs = previous.ReminderTriggerIDs
	return s.applyUpdate(ctx, previous, updated)
}

// SuppressOccurrence turns the recurring definition off for one ISO date
// without deleting the series.
func (s *EventService) SuppressOccurrence(ctx context.Context, id, isoDate string) (persistence.Event, error) {
	if _, err := time.Parse("2006-01-02", isoDate); err != nil {
		vErr := &ValidationError{}
		vErr.Add("date", "must be an ISO date (YYYY-MM-DD)")
		return persistence.Event{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	if previous.Recurrence == nil {
		vErr := &ValidationError{}
		vErr.Add("recurrence", "event does not recur")
		return persistence.Event{}, vErr
	}
	if previous.IsSuppressedOn(isoDate) {
		return previous, nil
	}

	updated := previous
	updated.SuppressedDates = append(append([]string(nil), previous.SuppressedDates...), isoDate)
	updated.UpdatedAt = s.now()
	return s.applyUpdate(ctx, previous, updated)
}

// applyUpdate runs the shared optimistic-then-queued update path. Moving
// an event between calendars touches two query keys: the event is upserted
// into the new calendar's projection and removed from the old one, and both
// snapshots roll back together.
func (s *EventService) applyUpdate(ctx context.Context, previous, updated persistence.Event) (persistence.Event, error) {
	key := viewcache.KeyEventsForCalendar(updated.CalendarID)

	token := s.cache.ApplyOptimistic(key, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.EventList)
		return list.Upsert(updated)
	})
	var prevToken viewcache.Token
	prevKey := viewcache.KeyEventsForCalendar(previous.CalendarID)
	if previous.CalendarID != updated.CalendarID {
		prevToken = s.cache.ApplyOptimistic(prevKey, func(v viewcache.Value) viewcache.Value {
			list, _ := v.(*viewcache.EventList)
			return list.Remove(updated.ID)
		})
	}
	rollback := func() {
		s.cache.Rollback(prevToken)
		s.cache.Rollback(token)
	}
	if err := s.store.UpsertEvent(ctx, updated); err != nil {
		rollback()
		return persistence.Event{}, fmt.Errorf("store event: %w", err)
	}

	revert := func(cause error) (persistence.Event, error) {
		rollback()
		_ = s.store.UpsertEvent(ctx, previous)
		return persistence.Event{}, cause
	}

	settle := func() {
		if !prevToken.Zero() {
			s.settle(prevToken, prevKey)
		}
		s.settle(token, key)
	}

	commit := func() (persistence.Event, error) {
		_, err := s.store.Enqueue(ctx, persistence.MutationUpdateEvent, mustPayload(updated), persistence.Correlation{LocalID: updated.ID, CalendarID: updated.CalendarID})
		if err != nil {
			return revert(fmt.Errorf("queue event update: %w", err))
		}
		settle()
		return s.refreshReminders(ctx, updated.ID)
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		return revert(err)
	}
	if !direct {
		return commit()
	}

	serverCopy, err := s.remote.UpdateEvent(ctx, updated)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		return revert(err)
	}
	if err := s.adopt(ctx, updated.ID, serverCopy); err != nil {
		return persistence.Event{}, err
	}
	settle()
	return s.refreshReminders(ctx, serverCopy.ID)
}

// DeleteEvent removes an event and cancels its installed triggers.
func (s *EventService) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	key := viewcache.KeyEventsForCalendar(previous.CalendarID)

	token := s.cache.ApplyOptimistic(key, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.EventList)
		return list.Remove(id)
	})
	if err := s.store.DeleteEvent(ctx, id); err != nil {
		s.cache.Rollback(token)
		return fmt.Errorf("delete event: %w", err)
	}

	revert := func(cause error) error {
		s.cache.Rollback(token)
		_ = s.store.UpsertEvent(ctx, previous)
		return cause
	}

	finish := func() error {
		s.settle(token, key)
		if s.reminders != nil {
			if err := s.reminders.CancelAll(ctx, previous); err != nil {
				s.logger.Warn("cancel reminders for deleted event", "event", id, "error", err)
			}
		}
		return nil
	}

	commit := func() error {
		_, err := s.store.Enqueue(ctx, persistence.MutationDeleteEvent, nil, persistence.Correlation{LocalID: id, CalendarID: previous.CalendarID})
		if err != nil {
			return revert(fmt.Errorf("queue event deletion: %w", err))
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

	if err := s.remote.DeleteEvent(ctx, id); err != nil {
		switch {
		case remote.IsTransient(err):
			return commit()
		case remote.CategoryOf(err) == remote.CategoryNotFound:
			// Already gone server-side.
		default:
			return revert(err)
		}
	}
	return finish()
}

// ListEvents serves one calendar's events: cache, then store, refreshing
// from the remote authority when reachable.
func (s *EventService) ListEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	key := viewcache.KeyEventsForCalendar(calendarID)
	if v, ok := s.cache.Read(key); ok {
		if list, _ := v.(*viewcache.EventList); list != nil {
			return list.Events, nil
		}
	}
	if s.online() && s.engine != nil {
		events, err := s.engine.ReconcileEvents(ctx, calendarID)
		if err == nil {
			return events, nil
		}
		if !remote.IsTransient(err) && !errors.Is(err, syncengine.ErrAuthRequired) {
			return nil, err
		}
		s.logger.Debug("remote refresh unavailable, serving local state", "error", err)
	}
	events, err := s.store.ListEvents(ctx, persistence.EventFilter{CalendarIDs: []string{calendarID}})
	if err != nil {
		return nil, err
	}
	s.cache.Put(key, &viewcache.EventList{Events: events})
	return events, nil
}

func (s *EventService) canDispatchDirectly(ctx context.Context) (bool, error) {
	if !s.online() {
		return false, nil
	}
	pending, err := hasPendingMutations(ctx, s.store)
	if err != nil {
		return false, err
	}
	return !pending, nil
}

func (s *EventService) adopt(ctx context.Context, localID string, server persistence.Event) error {
	if persistence.IsLocalID(localID) && localID != server.ID {
		if err := s.store.RemapLocalID(ctx, localID, server.ID); err != nil {
			return err
		}
		s.cache.RemapID(localID, server.ID)
	}
	merged := server
	merged.CreatedAt = s.now()
	if existing, err := s.store.GetEvent(ctx, server.ID); err == nil {
		merged.CreatedAt = existing.CreatedAt
		merged.ReminderTriggerIDs = existing.ReminderTriggerIDs
	}
	merged.UpdatedAt = s.now()
	return s.store.UpsertEvent(ctx, merged)
}

// refreshReminders recomputes the event's notification triggers and
// persists the installed ids on the event row.
func (s *EventService) refreshReminders(ctx context.Context, id string) (persistence.Event, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	if s.reminders == nil {
		return event, nil
	}
	ids, err := s.reminders.Reschedule(ctx, event)
	if err != nil {
		s.logger.Warn("reschedule reminders", "event", id, "error", err)
		return event, nil
	}
	event.ReminderTriggerIDs = ids
	if err := s.store.UpsertEvent(ctx, event); err != nil {
		return persistence.Event{}, fmt.Errorf("persist reminder triggers: %w", err)
	}
	return event, nil
}

func (s *EventService) settle(token viewcache.Token, key string) {
	s.cache.Release(token)
	s.cache.Invalidate(key)
}
