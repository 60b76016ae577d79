package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/localcal/internal/persistence"
)

var baseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(v string) *string { return &v }

func testCalendar(id string) persistence.Calendar {
	return persistence.Calendar{
		ID:          id,
		OwnerUserID: strPtr("user-1"),
		Title:       "Home",
		Color:       "#336699",
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func testEvent(id, calendarID string) persistence.Event {
	firstReminder := 10 * time.Minute
	return persistence.Event{
		ID:            id,
		CalendarID:    calendarID,
		Name:          "Walk",
		Start:         baseTime,
		End:           baseTime.Add(time.Hour),
		Location:      "Park",
		FirstReminder: &firstReminder,
		Priority:      2,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}

func TestCalendarRoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	cal := testCalendar("cal-1")

	if err := s.UpsertCalendar(ctx, cal); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.GetCalendar(ctx, "cal-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != cal.Title || got.Color != cal.Color || got.OwnerUserID == nil || *got.OwnerUserID != "user-1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(cal.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, cal.CreatedAt)
	}
}

func TestUpsertCalendarIdempotent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	cal := testCalendar("cal-1")
	cal.Title = "Renamed"

	if err := s.UpsertCalendar(ctx, cal); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.UpsertCalendar(ctx, cal); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	list, err := s.ListCalendars(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("idempotent upsert produced %d rows, want 1", len(list))
	}
	if list[0].Title != "Renamed" {
		t.Fatalf("title = %q, want Renamed", list[0].Title)
	}
}

func TestDeleteCalendarNotFound(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	err := s.DeleteCalendar(context.Background(), "missing")
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEventRoundTripWithRecurrence(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	if err := s.UpsertCalendar(ctx, testCalendar("cal-1")); err != nil {
		t.Fatalf("upsert calendar: %v", err)
	}

	recurrenceEnd := baseTime.AddDate(0, 3, 0)
	ev := testEvent("evt-1", "cal-1")
	ev.Recurrence = &persistence.RecurrenceRule{
		Minute:   0,
		Hour:     9,
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
	}
	ev.RecurrenceEnd = &recurrenceEnd
	ev.SuppressedDates = []string{"2024-01-08"}
	ev.ReminderTriggerIDs = []string{"trigger-1", "trigger-2"}

	if err := s.UpsertEvent(ctx, ev); err != nil {
		t.Fatalf("upsert event: %v", err)
	}
	got, err := s.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Recurrence == nil {
		t.Fatal("recurrence rule lost in round trip")
	}
	if got.Recurrence.Hour != 9 || len(got.Recurrence.Weekdays) != 2 {
		t.Fatalf("rule mismatch: %+v", got.Recurrence)
	}
	if got.RecurrenceEnd == nil || !got.RecurrenceEnd.Equal(recurrenceEnd) {
		t.Fatalf("recurrence end mismatch: %v", got.RecurrenceEnd)
	}
	if !got.IsSuppressedOn("2024-01-08") {
		t.Fatal("suppressed date lost in round trip")
	}
	if len(got.ReminderTriggerIDs) != 2 {
		t.Fatalf("trigger ids = %v", got.ReminderTriggerIDs)
	}
	if got.FirstReminder == nil || *got.FirstReminder != 10*time.Minute {
		t.Fatalf("first reminder = %v", got.FirstReminder)
	}
	if got.SecondReminder != nil {
		t.Fatalf("second reminder = %v, want nil", got.SecondReminder)
	}
}

func TestUpsertEventRejectsMissingCalendar(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	err := s.UpsertEvent(context.Background(), testEvent("evt-1", "nope"))
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("err = %v, want ErrConstraintViolation", err)
	}
}

func TestListEventsFilter(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	for _, id := range []string{"cal-1", "cal-2"} {
		if err := s.UpsertCalendar(ctx, testCalendar(id)); err != nil {
			t.Fatalf("upsert calendar %s: %v", id, err)
		}
	}

	early := testEvent("evt-early", "cal-1")
	late := testEvent("evt-late", "cal-1")
	late.Start = baseTime.AddDate(0, 0, 7)
	late.End = late.Start.Add(time.Hour)
	other := testEvent("evt-other", "cal-2")
	for _, ev := range []persistence.Event{early, late, other} {
		if err := s.UpsertEvent(ctx, ev); err != nil {
			t.Fatalf("upsert event %s: %v", ev.ID, err)
		}
	}

	cutoff := baseTime.AddDate(0, 0, 1)
	got, err := s.ListEvents(ctx, persistence.EventFilter{
		CalendarIDs: []string{"cal-1"},
		StartsAfter: &cutoff,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "evt-late" {
		t.Fatalf("filtered list = %+v, want only evt-late", got)
	}
}

func TestQueueOrderingAndRemoval(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	if _, err := s.PeekOldest(ctx); !errors.Is(err, persistence.ErrQueueEmpty) {
		t.Fatalf("peek on empty queue: %v, want ErrQueueEmpty", err)
	}

	kinds := []persistence.MutationKind{
		persistence.MutationCreateCalendar,
		persistence.MutationUpdateCalendar,
		persistence.MutationDeleteCalendar,
	}
	var seqs []int64
	for _, k := range kinds {
		seq, err := s.Enqueue(ctx, k, []byte(`{"id":"cal-1"}`), persistence.Correlation{LocalID: "cal-1"})
		if err != nil {
			t.Fatalf("enqueue %s: %v", k, err)
		}
		seqs = append(seqs, seq)
	}
	if !(seqs[0] < seqs[1] && seqs[1] < seqs[2]) {
		t.Fatalf("sequence numbers not strictly increasing: %v", seqs)
	}

	for i, want := range kinds {
		entry, err := s.PeekOldest(ctx)
		if err != nil {
			t.Fatalf("peek %d: %v", i, err)
		}
		if entry.Kind != want {
			t.Fatalf("peek %d kind = %s, want %s", i, entry.Kind, want)
		}
		if entry.Correlation.LocalID != "cal-1" {
			t.Fatalf("peek %d correlation = %+v", i, entry.Correlation)
		}
		if err := s.Remove(ctx, entry.Seq); err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
	}
	if _, err := s.PeekOldest(ctx); !errors.Is(err, persistence.ErrQueueEmpty) {
		t.Fatalf("queue not drained: %v", err)
	}
}

func TestEnqueueStampsInjectedClock(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	s.SetClock(func() time.Time { return baseTime })
	ctx := context.Background()

	if _, err := s.Enqueue(ctx, persistence.MutationCreateCalendar, []byte(`{"id":"cal-1"}`), persistence.Correlation{LocalID: "cal-1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	entry, err := s.PeekOldest(ctx)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if !entry.EnqueuedAt.Equal(baseTime) {
		t.Fatalf("enqueued_at = %v, want %v", entry.EnqueuedAt, baseTime)
	}
}

func TestListAllPreservesOrder(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Enqueue(ctx, persistence.MutationCreateEvent, []byte(`{}`), persistence.Correlation{}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("entries out of order: %v then %v", entries[i-1].Seq, entries[i].Seq)
		}
	}
}

func TestRemapLocalID(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	const localID = "local-abc"

	if err := s.UpsertCalendar(ctx, testCalendar(localID)); err != nil {
		t.Fatalf("upsert calendar: %v", err)
	}
	if err := s.UpsertEvent(ctx, testEvent("evt-1", localID)); err != nil {
		t.Fatalf("upsert event: %v", err)
	}
	payload, err := persistence.EncodePayload(testEvent("evt-1", localID))
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if _, err := s.Enqueue(ctx, persistence.MutationCreateEvent, payload, persistence.Correlation{LocalID: "evt-1", CalendarID: localID}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := s.RemapLocalID(ctx, localID, "cal-server"); err != nil {
		t.Fatalf("remap: %v", err)
	}

	if _, err := s.GetCalendar(ctx, localID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("old calendar id still resolves: %v", err)
	}
	if _, err := s.GetCalendar(ctx, "cal-server"); err != nil {
		t.Fatalf("get remapped calendar: %v", err)
	}

	ev, err := s.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.CalendarID != "cal-server" {
		t.Fatalf("event calendar id = %q, want cal-server", ev.CalendarID)
	}

	entries, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("queue len = %d, want 1", len(entries))
	}
	if entries[0].Correlation.CalendarID != "cal-server" {
		t.Fatalf("correlation = %+v, want remapped calendar id", entries[0].Correlation)
	}
	if strings.Contains(string(entries[0].Payload), localID) {
		t.Fatalf("payload still references local id: %s", entries[0].Payload)
	}
	decoded, err := persistence.DecodeEventPayload(entries[0].Payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.CalendarID != "cal-server" {
		t.Fatalf("payload calendar id = %q, want cal-server", decoded.CalendarID)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()

	group := persistence.Group{ID: "grp-1", Name: "Family", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := s.UpsertGroup(ctx, group); err != nil {
		t.Fatalf("upsert group: %v", err)
	}
	cal := testCalendar("cal-1")
	cal.OwnerUserID = nil
	cal.GroupID = strPtr("grp-1")
	if err := s.UpsertCalendar(ctx, cal); err != nil {
		t.Fatalf("upsert calendar: %v", err)
	}
	if err := s.UpsertEvent(ctx, testEvent("evt-1", "cal-1")); err != nil {
		t.Fatalf("upsert event: %v", err)
	}

	if err := s.DeleteGroup(ctx, "grp-1"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := s.GetCalendar(ctx, "cal-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("calendar survived group deletion: %v", err)
	}
	if _, err := s.GetEvent(ctx, "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("event survived group deletion: %v", err)
	}
}
