// Package reminder derives device-local notification triggers from events
// and re-issues them idempotently whenever an event changes.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/example/localcal/internal/persistence"
)

// Trigger is a device-local notification request handed to the delivery
// collaborator.
type Trigger struct {
	ID     string
	FireAt time.Time
	Title  string
	Body   string
}

// Notifier is the notification-delivery collaborator.
type Notifier interface {
	Schedule(ctx context.Context, trigger Trigger) error
	Cancel(ctx context.Context, triggerID string) error
}

// Scheduler installs up to two triggers per event, one per reminder offset.
type Scheduler struct {
	notifier Notifier
	newID    func() string
	now      func() time.Time
}

// NewScheduler wires the delivery collaborator with injectable id and time
// sources.
func NewScheduler(notifier Notifier, newID func() string, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{notifier: notifier, newID: newID, now: now}
}

// Reschedule cancels the event's previously installed triggers and installs
// a fresh trigger for each reminder offset whose target instant is still in
// the future. Offsets already in the past are skipped silently. The
// returned ids are the caller's to persist on the event record.
func (s *Scheduler) Reschedule(ctx context.Context, ev persistence.Event) ([]string, error) {
	for _, id := range ev.ReminderTriggerIDs {
		if err := s.notifier.Cancel(ctx, id); err != nil {
			return nil, fmt.Errorf("cancel trigger %s: %w", id, err)
		}
	}

	now := s.now()
	var installed []string
	for _, offset := range []*time.Duration{ev.FirstReminder, ev.SecondReminder} {
		if offset == nil {
			continue
		}
		fireAt := ev.Start.Add(-*offset)
		if !fireAt.After(now) {
			continue
		}
		trigger := Trigger{
			ID:     s.newID(),
			FireAt: fireAt,
			Title:  ev.Name,
			Body:   leadDescription(*offset),
		}
		if err := s.notifier.Schedule(ctx, trigger); err != nil {
			return installed, fmt.Errorf("schedule trigger for %s: %w", ev.ID, err)
		}
		installed = append(installed, trigger.ID)
	}
	return installed, nil
}

// CancelAll removes every installed trigger for the event, used when the
// event is deleted.
func (s *Scheduler) CancelAll(ctx context.Context, ev persistence.Event) error {
	for _, id := range ev.ReminderTriggerIDs {
		if err := s.notifier.Cancel(ctx, id); err != nil {
			return fmt.Errorf("cancel trigger %s: %w", id, err)
		}
	}
	return nil
}

// leadDescription renders the offset with the largest applicable unit.
func leadDescription(offset time.Duration) string {
	switch {
	case offset <= 0:
		return "at time of event"
	case offset >= 24*time.Hour && offset%(24*time.Hour) == 0:
		return plural(int(offset/(24*time.Hour)), "day")
	case offset >= time.Hour && offset%time.Hour == 0:
		return plural(int(offset/time.Hour), "hour")
	default:
		minutes := int(offset / time.Minute)
		if minutes < 1 {
			minutes = 1
		}
		return plural(minutes, "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s before", unit)
	}
	return fmt.Sprintf("%d %ss before", n, unit)
}
