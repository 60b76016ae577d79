package viewcache

import (
	"time"

	"github.com/example/localcal/internal/persistence"
)

// Query keys for the composite reads the UI layer issues.

// KeyCalendars is the query key for the full calendar list.
const KeyCalendars = "calendars"

// KeyGroups is the query key for the full group list.
const KeyGroups = "groups"

// KeyEventsForCalendar returns the query key for one calendar's events.
func KeyEventsForCalendar(calendarID string) string {
	return "events:" + calendarID
}

// CalendarList is the cached projection of a calendar collection.
type CalendarList struct {
	Calendars []persistence.Calendar
}

// Clone returns a deep copy.
func (l *CalendarList) Clone() Value {
	if l == nil {
		return (*CalendarList)(nil)
	}
	out := &CalendarList{Calendars: make([]persistence.Calendar, len(l.Calendars))}
	for i, c := range l.Calendars {
		out.Calendars[i] = cloneCalendar(c)
	}
	return out
}

// RemapID returns a copy with every reference to oldID replaced by newID.
func (l *CalendarList) RemapID(oldID, newID string) Value {
	out := l.Clone().(*CalendarList)
	if out == nil {
		return out
	}
	for i := range out.Calendars {
		if out.Calendars[i].ID == oldID {
			out.Calendars[i].ID = newID
		}
		if g := out.Calendars[i].GroupID; g != nil && *g == oldID {
			v := newID
			out.Calendars[i].GroupID = &v
		}
	}
	return out
}

// Upsert inserts or replaces a calendar by id.
func (l *CalendarList) Upsert(c persistence.Calendar) *CalendarList {
	out := &CalendarList{}
	if l != nil {
		out = l.Clone().(*CalendarList)
	}
	for i := range out.Calendars {
		if out.Calendars[i].ID == c.ID {
			out.Calendars[i] = cloneCalendar(c)
			return out
		}
	}
	out.Calendars = append(out.Calendars, cloneCalendar(c))
	return out
}

// Remove deletes a calendar by id, if present.
func (l *CalendarList) Remove(id string) *CalendarList {
	if l == nil {
		return nil
	}
	out := l.Clone().(*CalendarList)
	kept := out.Calendars[:0]
	for _, c := range out.Calendars {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	out.Calendars = kept
	return out
}

// EventList is the cached projection of one calendar's events.
type EventList struct {
	Events []persistence.Event
}

// Clone returns a deep copy.
func (l *EventList) Clone() Value {
	if l == nil {
		return (*EventList)(nil)
	}
	out := &EventList{Events: make([]persistence.Event, len(l.Events))}
	for i, e := range l.Events {
		out.Events[i] = cloneEvent(e)
	}
	return out
}

// RemapID returns a copy with every reference to oldID replaced by newID.
func (l *EventList) RemapID(oldID, newID string) Value {
	out := l.Clone().(*EventList)
	if out == nil {
		return out
	}
	for i := range out.Events {
		if out.Events[i].ID == oldID {
			out.Events[i].ID = newID
		}
		if out.Events[i].CalendarID == oldID {
			out.Events[i].CalendarID = newID
		}
	}
	return out
}

// Upsert inserts or replaces an event by id.
func (l *EventList) Upsert(e persistence.Event) *EventList {
	out := &EventList{}
	if l != nil {
		out = l.Clone().(*EventList)
	}
	for i := range out.Events {
		if out.Events[i].ID == e.ID {
			out.Events[i] = cloneEvent(e)
			return out
		}
	}
	out.Events = append(out.Events, cloneEvent(e))
	return out
}

// Remove deletes an event by id, if present.
func (l *EventList) Remove(id string) *EventList {
	if l == nil {
		return nil
	}
	out := l.Clone().(*EventList)
	kept := out.Events[:0]
	for _, e := range out.Events {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	out.Events = kept
	return out
}

// GroupList is the cached projection of the group collection.
type GroupList struct {
	Groups []persistence.Group
}

// Clone returns a deep copy.
func (l *GroupList) Clone() Value {
	if l == nil {
		return (*GroupList)(nil)
	}
	out := &GroupList{Groups: make([]persistence.Group, len(l.Groups))}
	copy(out.Groups, l.Groups)
	return out
}

// RemapID returns a copy with every reference to oldID replaced by newID.
func (l *GroupList) RemapID(oldID, newID string) Value {
	out := l.Clone().(*GroupList)
	if out == nil {
		return out
	}
	for i := range out.Groups {
		if out.Groups[i].ID == oldID {
			out.Groups[i].ID = newID
		}
	}
	return out
}

// Upsert inserts or replaces a group by id.
func (l *GroupList) Upsert(g persistence.Group) *GroupList {
	out := &GroupList{}
	if l != nil {
		out = l.Clone().(*GroupList)
	}
	for i := range out.Groups {
		if out.Groups[i].ID == g.ID {
			out.Groups[i] = g
			return out
		}
	}
	out.Groups = append(out.Groups, g)
	return out
}

// Remove deletes a group by id, if present.
func (l *GroupList) Remove(id string) *GroupList {
	if l == nil {
		return nil
	}
	out := l.Clone().(*GroupList)
	kept := out.Groups[:0]
	for _, g := range out.Groups {
		if g.ID != id {
			kept = append(kept, g)
		}
	}
	out.Groups = kept
	return out
}

func cloneCalendar(c persistence.Calendar) persistence.Calendar {
	out := c
	if c.OwnerUserID != nil {
		v := *c.OwnerUserID
		out.OwnerUserID = &v
	}
	if c.GroupID != nil {
		v := *c.GroupID
		out.GroupID = &v
	}
	return out
}

func cloneEvent(e persistence.Event) persistence.Event {
	out := e
	if e.FirstReminder != nil {
		v := *e.FirstReminder
		out.FirstReminder = &v
	}
	if e.SecondReminder != nil {
		v := *e.SecondReminder
		out.SecondReminder = &v
	}
	if e.Recurrence != nil {
		r := *e.Recurrence
		r.Weekdays = append([]time.Weekday(nil), e.Recurrence.Weekdays...)
		out.Recurrence = &r
	}
	if e.RecurrenceEnd != nil {
		v := *e.RecurrenceEnd
		out.RecurrenceEnd = &v
	}
	if e.ImageRef != nil {
		v := *e.ImageRef
		out.ImageRef = &v
	}
	out.SuppressedDates = append(out.SuppressedDates[:0:0], e.SuppressedDates...)
	out.ReminderTriggerIDs = append(out.ReminderTriggerIDs[:0:0], e.ReminderTriggerIDs...)
	return out
}
