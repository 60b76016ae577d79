package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/localcal/internal/persistence"
)

func eventInput(calendarID string, start time.Time) EventInput {
	return EventInput{
		CalendarID: calendarID,
		Name:       "Dentist",
		Start:      start,
		End:        start.Add(time.Hour),
	}
}

func TestCreateEventValidation(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	start := h.clock.Now().Add(3 * time.Hour)

	tests := []struct {
		name  string
		input EventInput
		field string
	}{
		{
			name:  "empty name",
			input: EventInput{CalendarID: "cal-1", Start: start, End: start.Add(time.Hour)},
			field: "name",
		},
		{
			name:  "missing calendar",
			input: EventInput{Name: "Dentist", Start: start, End: start.Add(time.Hour)},
			field: "calendar_id",
		},
		{
			name:  "missing start",
			input: EventInput{Name: "Dentist", CalendarID: "cal-1"},
			field: "start",
		},
		{
			name:  "end before start",
			input: EventInput{Name: "Dentist", CalendarID: "cal-1", Start: start, End: start.Add(-time.Hour)},
			field: "end",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := h.events.CreateEvent(context.Background(), tc.input)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := vErr.Fields[tc.field]; !ok {
				t.Fatalf("fields = %v, want %s", vErr.Fields, tc.field)
			}
		})
	}
}

func TestCreateEventRequiresExistingCalendar(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	start := h.clock.Now().Add(3 * time.Hour)

	_, err := h.events.CreateEvent(context.Background(), eventInput("cal-nope", start))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := vErr.Fields["calendar_id"]; !ok {
		t.Fatalf("fields = %v, want calendar_id", vErr.Fields)
	}
}

func TestCreateEventOnlineInstallsReminders(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}

	first, second := 10*time.Minute, time.Hour
	input := eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour))
	input.FirstReminder = &first
	input.SecondReminder = &second

	created, err := h.events.CreateEvent(ctx, input)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if created.ID != "srv-2" {
		t.Fatalf("id = %q, want server-assigned srv-2", created.ID)
	}
	if len(created.ReminderTriggerIDs) != 2 {
		t.Fatalf("trigger ids = %v, want 2", created.ReminderTriggerIDs)
	}

	active := h.notifier.Active()
	if len(active) != 2 {
		t.Fatalf("notifier holds %d triggers, want 2", len(active))
	}
	wantFireAts := map[time.Time]bool{
		input.Start.Add(-first):  false,
		input.Start.Add(-second): false,
	}
	for _, trigger := range active {
		wantFireAts[trigger.FireAt] = true
	}
	for at, seen := range wantFireAts {
		if !seen {
			t.Fatalf("no trigger fires at %v", at)
		}
	}

	stored, err := h.store.GetEvent(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.ReminderTriggerIDs) != 2 {
		t.Fatalf("stored trigger ids = %v", stored.ReminderTriggerIDs)
	}
}

func TestCreateEventOfflineQueuesWithLocalCorrelation(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	h.setOnline(false)
	ctx := context.Background()

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	created, err := h.events.CreateEvent(ctx, eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if !persistence.IsLocalID(created.ID) {
		t.Fatalf("id = %q, want temporary local id", created.ID)
	}

	entries := queueEntries(t, h)
	if len(entries) != 2 {
		t.Fatalf("queue has %d entries, want 2", len(entries))
	}
	last := entries[1]
	if last.Kind != persistence.MutationCreateEvent {
		t.Fatalf("kind = %s", last.Kind)
	}
	if last.Correlation.LocalID != created.ID || last.Correlation.CalendarID != calendar.ID {
		t.Fatalf("correlation = %+v", last.Correlation)
	}
}

func TestUpdateEventReschedulesReminders(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	first := 10 * time.Minute
	input := eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour))
	input.FirstReminder = &first
	created, err := h.events.CreateEvent(ctx, input)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	oldTriggers := created.ReminderTriggerIDs
	if len(oldTriggers) != 1 {
		t.Fatalf("trigger ids = %v, want 1", oldTriggers)
	}

	moved := input
	moved.Start = input.Start.Add(24 * time.Hour)
	moved.End = moved.Start.Add(time.Hour)
	updated, err := h.events.UpdateEvent(ctx, created.ID, moved)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(updated.ReminderTriggerIDs) != 1 || updated.ReminderTriggerIDs[0] == oldTriggers[0] {
		t.Fatalf("trigger ids = %v, want fresh id replacing %v", updated.ReminderTriggerIDs, oldTriggers)
	}
	active := h.notifier.Active()
	if len(active) != 1 {
		t.Fatalf("notifier holds %d triggers, want 1", len(active))
	}
	trigger, ok := active[updated.ReminderTriggerIDs[0]]
	if !ok {
		t.Fatalf("active triggers %v missing %s", active, updated.ReminderTriggerIDs[0])
	}
	if want := moved.Start.Add(-first); !trigger.FireAt.Equal(want) {
		t.Fatalf("fire at %v, want %v", trigger.FireAt, want)
	}
}

func TestUpdateEventMovesBetweenCalendarProjections(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	h.setOnline(false)
	ctx := context.Background()

	home, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	work, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Work"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	created, err := h.events.CreateEvent(ctx, eventInput(home.ID, h.clock.Now().Add(3*time.Hour)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	// Warm the source calendar's projection before the move.
	if _, err := h.events.ListEvents(ctx, home.ID); err != nil {
		t.Fatalf("list: %v", err)
	}

	moved := eventInput(work.ID, created.Start)
	if _, err := h.events.UpdateEvent(ctx, created.ID, moved); err != nil {
		t.Fatalf("update: %v", err)
	}

	left, err := h.events.ListEvents(ctx, home.ID)
	if err != nil {
		t.Fatalf("list source calendar: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("source calendar still lists %d event(s): %+v", len(left), left)
	}
	arrived, err := h.events.ListEvents(ctx, work.ID)
	if err != nil {
		t.Fatalf("list target calendar: %v", err)
	}
	if len(arrived) != 1 || arrived[0].ID != created.ID || arrived[0].CalendarID != work.ID {
		t.Fatalf("target calendar lists %+v, want the moved event", arrived)
	}
}

func TestSuppressOccurrence(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	h.setOnline(false)
	ctx := context.Background()

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	input := eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour))
	input.Recurrence = &persistence.RecurrenceRule{Weekdays: []time.Weekday{time.Monday}}
	created, err := h.events.CreateEvent(ctx, input)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	before := len(queueEntries(t, h))

	suppressed, err := h.events.SuppressOccurrence(ctx, created.ID, "2024-01-08")
	if err != nil {
		t.Fatalf("suppress: %v", err)
	}
	if !suppressed.IsSuppressedOn("2024-01-08") {
		t.Fatalf("suppressed dates = %v", suppressed.SuppressedDates)
	}
	if got := len(queueEntries(t, h)); got != before+1 {
		t.Fatalf("queue grew by %d entries, want 1", got-before)
	}

	// Suppressing an already-off date is a no-op, not a new mutation.
	again, err := h.events.SuppressOccurrence(ctx, created.ID, "2024-01-08")
	if err != nil {
		t.Fatalf("second suppress: %v", err)
	}
	if len(again.SuppressedDates) != 1 {
		t.Fatalf("suppressed dates = %v", again.SuppressedDates)
	}
	if got := len(queueEntries(t, h)); got != before+1 {
		t.Fatalf("idempotent suppress queued a new entry")
	}
}

func TestSuppressOccurrenceRejectsBadInput(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	_, err := h.events.SuppressOccurrence(ctx, "evt-1", "Jan 8")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	created, err := h.events.CreateEvent(ctx, eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour)))
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	_, err = h.events.SuppressOccurrence(ctx, created.ID, "2024-01-08")
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError for non-recurring event", err)
	}
}

func TestDeleteEventCancelsReminders(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Home"})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	first := 10 * time.Minute
	input := eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour))
	input.FirstReminder = &first
	created, err := h.events.CreateEvent(ctx, input)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := h.events.DeleteEvent(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := h.store.GetEvent(ctx, created.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("event still in store: %v", err)
	}
	if active := h.notifier.Active(); len(active) != 0 {
		t.Fatalf("triggers survived deletion: %v", active)
	}
}
