// Package recurrence expands recurring event definitions into concrete
// occurrences for a queried window. Expansion is a pure function of its
// inputs: identical inputs always produce identical output.
package recurrence

import (
	"errors"
	"time"

	"github.com/example/localcal/internal/persistence"
)

// ErrNoRule indicates the event carries no recurrence rule.
var ErrNoRule = errors.New("recurrence: event has no rule")

// ErrNoAnchor indicates the event has no start time to anchor the rule to.
var ErrNoAnchor = errors.New("recurrence: rule requires an anchored start time")

// ErrInvalidWindow indicates the query window is empty or inverted.
var ErrInvalidWindow = errors.New("recurrence: window end must be after window start")

// Occurrence is one concrete instance of a recurring event.
type Occurrence struct {
	EventID string
	Date    string // ISO date of the occurrence day
	Start   time.Time
	End     time.Time
}

// Kind is the derived shape of a recurrence rule.
type Kind int

const (
	// KindDaily repeats every day.
	KindDaily Kind = iota
	// KindWeekly repeats on a set of weekdays.
	KindWeekly
	// KindMonthly repeats on the start date's day of month.
	KindMonthly
	// KindYearly repeats on the start date's day of month and month.
	KindYearly
)

// KindOf derives the rule kind from its populated fields.
func KindOf(rule persistence.RecurrenceRule) Kind {
	switch {
	case len(rule.Weekdays) > 0:
		return KindWeekly
	case rule.MonthDay > 0 && rule.Month > 0:
		return KindYearly
	case rule.MonthDay > 0:
		return KindMonthly
	default:
		return KindDaily
	}
}

// Expand generates the occurrences of ev that fall on days within the
// half-open window [from, to).
//
// A day qualifies when the rule's membership test passes, the day is on or
// after the event's original start date, on or before the recurrence end if
// one exists, and the day's ISO date is not suppressed. Each qualifying day
// yields one occurrence with the original start and end time-of-day
// projected onto it. An end hour recorded as 00 is read as 24:00 of the
// same day before the projection.
func Expand(ev persistence.Event, from, to time.Time) ([]Occurrence, error) {
	if ev.Recurrence == nil {
		return nil, ErrNoRule
	}
	if ev.Start.IsZero() {
		return nil, ErrNoAnchor
	}
	if !to.After(from) {
		return nil, ErrInvalidWindow
	}

	rule := *ev.Recurrence
	kind := KindOf(rule)

	start := ev.Start.UTC()
	anchorDay := dateOf(start)

	startMinutes := rule.Hour*60 + rule.Minute
	endMinutes := endOfDayMinutes(ev.End.UTC())

	var until time.Time
	if ev.RecurrenceEnd != nil {
		until = dateOf(ev.RecurrenceEnd.UTC())
	}

	var occurrences []Occurrence
	for day := dateOf(from.UTC()); day.Before(to.UTC()); day = day.AddDate(0, 0, 1) {
		if day.Before(anchorDay) {
			continue
		}
		if !until.IsZero() && day.After(until) {
			break
		}
		if !matches(kind, rule, day) {
			continue
		}
		iso := day.Format("2006-01-02")
		if ev.IsSuppressedOn(iso) {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			EventID: ev.ID,
			Date:    iso,
			Start:   day.Add(time.Duration(startMinutes) * time.Minute),
			End:     day.Add(time.Duration(endMinutes) * time.Minute),
		})
	}
	return occurrences, nil
}

func matches(kind Kind, rule persistence.RecurrenceRule, day time.Time) bool {
	switch kind {
	case KindDaily:
		return true
	case KindWeekly:
		for _, w := range rule.Weekdays {
			if day.Weekday() == w {
				return true
			}
		}
		return false
	case KindMonthly:
		return day.Day() == rule.MonthDay
	case KindYearly:
		return day.Day() == rule.MonthDay && day.Month() == rule.Month
	default:
		return false
	}
}

// dateOf truncates t to midnight UTC of its calendar day.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// endOfDayMinutes returns the end time-of-day in minutes from midnight,
// reading a recorded hour of 00 as 24:00 of the same day.
func endOfDayMinutes(end time.Time) int {
	h, m := end.Hour(), end.Minute()
	if h == 0 {
		h = 24
	}
	return h*60 + m
}
