// Package ics serializes a calendar's events to an iCalendar document for
// the share/subscribe surface. Recurring events are exported as their
// concrete occurrences within a window, so suppressed dates simply never
// appear.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/recurrence"
)

// Export renders the calendar and its events as an iCalendar document.
// Recurring events are expanded over [from, to).
func Export(calendar persistence.Calendar, events []persistence.Event, from, to time.Time) (string, error) {
	doc := ical.NewCalendar()
	doc.SetMethod(ical.MethodPublish)
	doc.SetProductId("-//localcal//calendar//EN")
	doc.SetXWRCalName(calendar.Title)

	for _, ev := range events {
		if ev.Recurrence == nil {
			addOccurrence(doc, ev, ev.ID, ev.Start, ev.End)
			continue
		}
		occurrences, err := recurrence.Expand(ev, from, to)
		if err != nil {
			return "", fmt.Errorf("expand event %s: %w", ev.ID, err)
		}
		for _, occ := range occurrences {
			addOccurrence(doc, ev, fmt.Sprintf("%s-%s", ev.ID, occ.Date), occ.Start, occ.End)
		}
	}
	return doc.Serialize(), nil
}

func addOccurrence(doc *ical.Calendar, ev persistence.Event, uid string, start, end time.Time) {
	entry := doc.AddEvent(uid)
	entry.SetSummary(ev.Name)
	entry.SetDtStampTime(start)
	if ev.AllDay {
		entry.SetAllDayStartAt(start)
		entry.SetAllDayEndAt(end)
	} else {
		entry.SetStartAt(start)
		entry.SetEndAt(end)
	}
	if ev.Location != "" {
		entry.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		entry.SetDescription(ev.Description)
	}
}
