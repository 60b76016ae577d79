package viewcache

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/localcal/internal/persistence"
)

func calendar(id, title string) persistence.Calendar {
	return persistence.Calendar{ID: id, Title: title, Color: "#336699", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func mustCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(16)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func TestReadMissAndPut(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	if _, ok := c.Read(KeyCalendars); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Put(KeyCalendars, &CalendarList{Calendars: []persistence.Calendar{calendar("cal-1", "Home")}})
	v, ok := c.Read(KeyCalendars)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	list := v.(*CalendarList)
	if len(list.Calendars) != 1 || list.Calendars[0].ID != "cal-1" {
		t.Fatalf("unexpected cached value: %+v", list)
	}
}

func TestReadReturnsClone(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	c.Put(KeyCalendars, &CalendarList{Calendars: []persistence.Calendar{calendar("cal-1", "Home")}})

	v, _ := c.Read(KeyCalendars)
	v.(*CalendarList).Calendars[0].Title = "mutated"

	again, _ := c.Read(KeyCalendars)
	if got := again.(*CalendarList).Calendars[0].Title; got != "Home" {
		t.Fatalf("cached value mutated through a read copy: %q", got)
	}
}

func TestRollbackRestoresSnapshotExactly(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	original := &CalendarList{Calendars: []persistence.Calendar{calendar("cal-1", "Home"), calendar("cal-2", "Work")}}
	c.Put(KeyCalendars, original)

	token := c.ApplyOptimistic(KeyCalendars, func(v Value) Value {
		list := v.(*CalendarList)
		return list.Remove("cal-1").Upsert(calendar("cal-3", "Gym"))
	})

	v, _ := c.Read(KeyCalendars)
	if got := len(v.(*CalendarList).Calendars); got != 2 {
		t.Fatalf("optimistic value has %d calendars, want 2", got)
	}

	c.Rollback(token)
	restored, ok := c.Read(KeyCalendars)
	if !ok {
		t.Fatal("expected value after rollback")
	}
	if !reflect.DeepEqual(restored, original.Clone()) {
		t.Fatalf("rollback mismatch: %+v", restored)
	}
}

func TestRollbackSurvivesInvalidate(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	original := &CalendarList{Calendars: []persistence.Calendar{calendar("cal-1", "Home")}}
	c.Put(KeyCalendars, original)

	token := c.ApplyOptimistic(KeyCalendars, func(v Value) Value {
		return v.(*CalendarList).Remove("cal-1")
	})
	c.Invalidate(KeyCalendars)
	c.Rollback(token)

	restored, ok := c.Read(KeyCalendars)
	if !ok {
		t.Fatal("expected snapshot back after rollback despite intervening invalidate")
	}
	if !reflect.DeepEqual(restored, original.Clone()) {
		t.Fatalf("rollback mismatch: %+v", restored)
	}
}

func TestRollbackOnMissRemovesKey(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	token := c.ApplyOptimistic(KeyCalendars, func(v Value) Value {
		list, _ := v.(*CalendarList)
		return list.Upsert(calendar("cal-1", "Home"))
	})
	if _, ok := c.Read(KeyCalendars); !ok {
		t.Fatal("expected optimistic value")
	}
	c.Rollback(token)
	if _, ok := c.Read(KeyCalendars); ok {
		t.Fatal("rollback of a miss snapshot must clear the key")
	}
}

func TestReleaseConsumesToken(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	c.Put(KeyCalendars, &CalendarList{Calendars: []persistence.Calendar{calendar("cal-1", "Home")}})
	token := c.ApplyOptimistic(KeyCalendars, func(v Value) Value {
		return v.(*CalendarList).Remove("cal-1")
	})
	c.Release(token)
	c.Rollback(token)

	v, ok := c.Read(KeyCalendars)
	if !ok {
		t.Fatal("expected value")
	}
	if got := len(v.(*CalendarList).Calendars); got != 0 {
		t.Fatalf("released token still rolled back: %d calendars", got)
	}
}

func TestRemapIDRewritesValuesAndKeys(t *testing.T) {
	t.Parallel()

	c := mustCache(t)
	local := "local-abc"
	c.Put(KeyCalendars, &CalendarList{Calendars: []persistence.Calendar{calendar(local, "Home")}})
	c.Put(KeyEventsForCalendar(local), &EventList{Events: []persistence.Event{{
		ID:         "local-evt",
		CalendarID: local,
		Name:       "Walk",
	}}})

	c.RemapID(local, "cal-9")

	v, ok := c.Read(KeyCalendars)
	if !ok {
		t.Fatal("expected calendar list")
	}
	if got := v.(*CalendarList).Calendars[0].ID; got != "cal-9" {
		t.Fatalf("calendar id = %q, want cal-9", got)
	}

	if _, ok := c.Read(KeyEventsForCalendar(local)); ok {
		t.Fatal("old query key still present after remap")
	}
	ev, ok := c.Read(KeyEventsForCalendar("cal-9"))
	if !ok {
		t.Fatal("remapped query key missing")
	}
	if got := ev.(*EventList).Events[0].CalendarID; got != "cal-9" {
		t.Fatalf("event calendar id = %q, want cal-9", got)
	}
}
