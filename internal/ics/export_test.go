package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/example/localcal/internal/persistence"
)

func TestExportSingleEvent(t *testing.T) {
	t.Parallel()

	calendar := persistence.Calendar{ID: "cal-1", Title: "Home"}
	start := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	events := []persistence.Event{{
		ID:         "evt-1",
		CalendarID: "cal-1",
		Name:       "Dentist",
		Start:      start,
		End:        start.Add(time.Hour),
		Location:   "Main St 4",
	}}

	doc, err := Export(calendar, events, start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"X-WR-CALNAME:Home",
		"UID:evt-1",
		"SUMMARY:Dentist",
		"LOCATION:Main St 4",
		"DTSTART:20240103T090000Z",
		"END:VCALENDAR",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("document missing %q:\n%s", want, doc)
		}
	}
}

func TestExportExpandsRecurringEvents(t *testing.T) {
	t.Parallel()

	calendar := persistence.Calendar{ID: "cal-1", Title: "Home"}
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []persistence.Event{{
		ID:         "evt-1",
		CalendarID: "cal-1",
		Name:       "Standup",
		Start:      anchor,
		End:        anchor.Add(30 * time.Minute),
		Recurrence: &persistence.RecurrenceRule{
			Minute:   0,
			Hour:     9,
			Weekdays: []time.Weekday{time.Monday},
		},
		SuppressedDates: []string{"2024-01-08"},
	}}

	doc, err := Export(calendar, events, anchor, anchor.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	// Mondays in the window are Jan 1, 8, 15; the 8th is suppressed.
	if !strings.Contains(doc, "UID:evt-1-2024-01-01") {
		t.Fatalf("first occurrence missing:\n%s", doc)
	}
	if !strings.Contains(doc, "UID:evt-1-2024-01-15") {
		t.Fatalf("later occurrence missing:\n%s", doc)
	}
	if strings.Contains(doc, "2024-01-08") {
		t.Fatalf("suppressed occurrence exported:\n%s", doc)
	}
}
