package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/localcal/internal/persistence"
)

func TestCreateGroupRejectsEmptyName(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	_, err := h.groups.CreateGroup(context.Background(), GroupInput{Name: " "})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestCreateGroupOnlineAdoptsServerID(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	created, err := h.groups.CreateGroup(ctx, GroupInput{Name: "Family"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "srv-1" {
		t.Fatalf("id = %q, want srv-1", created.ID)
	}
	if _, err := h.store.GetGroup(ctx, "srv-1"); err != nil {
		t.Fatalf("server copy not in store: %v", err)
	}
}

func TestDeleteGroupCascadesLocally(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	group, err := h.groups.CreateGroup(ctx, GroupInput{Name: "Family"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Shared", GroupID: &group.ID})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}

	if err := h.groups.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := h.store.GetGroup(ctx, group.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("group still in store: %v", err)
	}
	if _, err := h.store.GetCalendar(ctx, calendar.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("group calendar survived the cascade: %v", err)
	}
}

func TestDeleteGroupCancelsCascadedReminders(t *testing.T) {
	t.Parallel()

	h := newServices(t)
	ctx := context.Background()

	group, err := h.groups.CreateGroup(ctx, GroupInput{Name: "Family"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	calendar, err := h.calendars.CreateCalendar(ctx, CalendarInput{Title: "Shared", GroupID: &group.ID})
	if err != nil {
		t.Fatalf("create calendar: %v", err)
	}
	first := 10 * time.Minute
	input := eventInput(calendar.ID, h.clock.Now().Add(3*time.Hour))
	input.FirstReminder = &first
	if _, err := h.events.CreateEvent(ctx, input); err != nil {
		t.Fatalf("create event: %v", err)
	}
	if len(h.notifier.Active()) != 1 {
		t.Fatalf("trigger not installed: %v", h.notifier.Active())
	}

	if err := h.groups.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if active := h.notifier.Active(); len(active) != 0 {
		t.Fatalf("triggers survived the cascading delete: %v", active)
	}
}
