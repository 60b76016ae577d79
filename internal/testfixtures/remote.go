package testfixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/remote"
)

// FakeRemote is an in-memory stand-in for the remote authority. Failures
// can be scripted per operation name, and every dispatched call is recorded
// so tests can assert replay order.
type FakeRemote struct {
	mu        sync.Mutex
	ids       *IDGenerator
	calendars map[string]persistence.Calendar
	events    map[string]persistence.Event
	groups    map[string]persistence.Group

	// failures maps an operation name ("CreateEvent", "DeleteCalendar",
	// ...) to the error its next invocations return. Clear with Succeed.
	failures map[string]error
	calls    []string
}

// NewFakeRemote builds an empty fake authority assigning ids with the
// given prefix.
func NewFakeRemote(idPrefix string) *FakeRemote {
	if idPrefix == "" {
		idPrefix = "srv"
	}
	return &FakeRemote{
		ids:       NewIDGenerator(idPrefix),
		calendars: make(map[string]persistence.Calendar),
		events:    make(map[string]persistence.Event),
		groups:    make(map[string]persistence.Group),
		failures:  make(map[string]error),
	}
}

// Fail scripts err for every upcoming invocation of the named operation.
func (f *FakeRemote) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// Succeed clears a scripted failure.
func (f *FakeRemote) Succeed(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, op)
}

// Calls returns the operations dispatched so far, in order. Entity ids are
// appended to each record.
func (f *FakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// SeedCalendar installs a calendar server-side without recording a call.
func (f *FakeRemote) SeedCalendar(c persistence.Calendar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars[c.ID] = c
}

// SeedEvent installs an event server-side without recording a call.
func (f *FakeRemote) SeedEvent(e persistence.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.ID] = e
}

// SeedGroup installs a group server-side without recording a call.
func (f *FakeRemote) SeedGroup(g persistence.Group) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = g
}

func (f *FakeRemote) begin(op, id string) error {
	f.calls = append(f.calls, op+":"+id)
	if err, ok := f.failures[op]; ok {
		return err
	}
	return nil
}

func notFound(kind, id string) error {
	return &remote.Error{Category: remote.CategoryNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
}

// CreateCalendar assigns a server id and stores the calendar.
func (f *FakeRemote) CreateCalendar(_ context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateCalendar", calendar.ID); err != nil {
		return persistence.Calendar{}, err
	}
	calendar.ID = f.ids.Next()
	f.calendars[calendar.ID] = calendar
	return calendar, nil
}

// UpdateCalendar overwrites a stored calendar.
func (f *FakeRemote) UpdateCalendar(_ context.Context, calendar persistence.Calendar) (persistence.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateCalendar", calendar.ID); err != nil {
		return persistence.Calendar{}, err
	}
	if _, ok := f.calendars[calendar.ID]; !ok {
		return persistence.Calendar{}, notFound("calendar", calendar.ID)
	}
	f.calendars[calendar.ID] = calendar
	return calendar, nil
}

// DeleteCalendar removes a stored calendar.
func (f *FakeRemote) DeleteCalendar(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteCalendar", id); err != nil {
		return err
	}
	if _, ok := f.calendars[id]; !ok {
		return notFound("calendar", id)
	}
	delete(f.calendars, id)
	return nil
}

// ListCalendars returns the stored calendars sorted by id.
func (f *FakeRemote) ListCalendars(_ context.Context) ([]persistence.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListCalendars", ""); err != nil {
		return nil, err
	}
	out := make([]persistence.Calendar, 0, len(f.calendars))
	for _, c := range f.calendars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateEvent assigns a server id and stores the event. The owning
// calendar must exist server-side.
func (f *FakeRemote) CreateEvent(_ context.Context, event persistence.Event) (persistence.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateEvent", event.ID); err != nil {
		return persistence.Event{}, err
	}
	if _, ok := f.calendars[event.CalendarID]; !ok {
		return persistence.Event{}, notFound("calendar", event.CalendarID)
	}
	event.ID = f.ids.Next()
	event.ReminderTriggerIDs = nil
	f.events[event.ID] = event
	return event, nil
}

// UpdateEvent overwrites a stored event.
func (f *FakeRemote) UpdateEvent(_ context.Context, event persistence.Event) (persistence.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateEvent", event.ID); err != nil {
		return persistence.Event{}, err
	}
	if _, ok := f.events[event.ID]; !ok {
		return persistence.Event{}, notFound("event", event.ID)
	}
	event.ReminderTriggerIDs = nil
	f.events[event.ID] = event
	return event, nil
}

// DeleteEvent removes a stored event.
func (f *FakeRemote) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteEvent", id); err != nil {
		return err
	}
	if _, ok := f.events[id]; !ok {
		return notFound("event", id)
	}
	delete(f.events, id)
	return nil
}

// ListEvents returns the stored events of one calendar sorted by id.
func (f *FakeRemote) ListEvents(_ context.Context, calendarID string) ([]persistence.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListEvents", calendarID); err != nil {
		return nil, err
	}
	var out []persistence.Event
	for _, e := range f.events {
		if e.CalendarID == calendarID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateGroup assigns a server id and stores the group.
func (f *FakeRemote) CreateGroup(_ context.Context, group persistence.Group) (persistence.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("CreateGroup", group.ID); err != nil {
		return persistence.Group{}, err
	}
	group.ID = f.ids.Next()
	f.groups[group.ID] = group
	return group, nil
}

// UpdateGroup overwrites a stored group.
func (f *FakeRemote) UpdateGroup(_ context.Context, group persistence.Group) (persistence.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateGroup", group.ID); err != nil {
		return persistence.Group{}, err
	}
	if _, ok := f.groups[group.ID]; !ok {
		return persistence.Group{}, notFound("group", group.ID)
	}
	f.groups[group.ID] = group
	return group, nil
}

// DeleteGroup removes a stored group.
func (f *FakeRemote) DeleteGroup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteGroup", id); err != nil {
		return err
	}
	if _, ok := f.groups[id]; !ok {
		return notFound("group", id)
	}
	delete(f.groups, id)
	return nil
}

// ListGroups returns the stored groups sorted by id.
func (f *FakeRemote) ListGroups(_ context.Context) ([]persistence.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("ListGroups", ""); err != nil {
		return nil, err
	}
	out := make([]persistence.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ remote.Client = (*FakeRemote)(nil)

// TransientError returns a scripted retryable failure.
func TransientError() error {
	return &remote.Error{Category: remote.CategoryTransient, Message: "network unreachable"}
}

// AuthError returns a scripted authorization failure.
func AuthError() error {
	return &remote.Error{Category: remote.CategoryAuth, Message: "session expired"}
}

// ValidationError returns a scripted payload rejection.
func ValidationError() error {
	return &remote.Error{Category: remote.CategoryValidation, Message: "malformed payload"}
}
