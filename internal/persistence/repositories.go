package persistence

import (
	"context"
	"time"
)

// CalendarRepository exposes durable storage for calendars.
type CalendarRepository interface {
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	UpsertCalendar(ctx context.Context, calendar Calendar) error
	DeleteCalendar(ctx context.Context, id string) error
	ListCalendars(ctx context.Context) ([]Calendar, error)
}

// EventFilter narrows event queries.
type EventFilter struct {
	CalendarIDs []string
	StartsAfter *time.Time
	EndsBefore  *time.Time
}

// EventRepository exposes durable storage for events.
type EventRepository interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	UpsertEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// GroupRepository exposes durable storage for groups.
type GroupRepository interface {
	GetGroup(ctx context.Context, id string) (Group, error)
	UpsertGroup(ctx context.Context, group Group) error
	// DeleteGroup removes the group and cascades to its calendars and
	// their events.
	DeleteGroup(ctx context.Context, id string) error
	ListGroups(ctx context.Context) ([]Group, error)
}

// MutationQueue is the append-only, strictly ordered log of writes the
// remote authority has not yet acknowledged.
type MutationQueue interface {
	// Enqueue durably appends an entry and returns its sequence number.
	Enqueue(ctx context.Context, kind MutationKind, payload []byte, correlation Correlation) (int64, error)
	// PeekOldest returns the entry with the smallest sequence number, or
	// ErrQueueEmpty.
	PeekOldest(ctx context.Context) (MutationEntry, error)
	// Remove deletes the entry with the given sequence number. Only valid
	// once the remote authority has acknowledged the operation.
	Remove(ctx context.Context, seq int64) error
	// ListAll returns every pending entry ordered by sequence number.
	ListAll(ctx context.Context) ([]MutationEntry, error)
}

// IDRemapper atomically replaces a temporary local id with the
// server-assigned one everywhere durable state references it: the entity's
// own row, event foreign keys, and the correlation block and payload of
// every still-pending mutation entry. Either every reference moves to the
// new id or none do.
type IDRemapper interface {
	RemapLocalID(ctx context.Context, localID, serverID string) error
}

// Store aggregates the durable collaborators the sync layers depend on.
type Store interface {
	CalendarRepository
	EventRepository
	GroupRepository
	MutationQueue
	IDRemapper
}
