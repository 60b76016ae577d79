package remote

import (
	"time"

	"github.com/example/localcal/internal/persistence"
)

// Wire representations exchanged with the remote authority. Durations travel
// as whole seconds, recurrence weekdays as small integers, and instants as
// RFC 3339 strings via time.Time's JSON encoding.

type calendarDTO struct {
	ID          string  `json:"id"`
	OwnerUserID *string `json:"owner_user_id,omitempty"`
	GroupID     *string `json:"group_id,omitempty"`
	Title       string  `json:"title"`
	Color       string  `json:"color"`
	Public      bool    `json:"public"`
	InviteCode  string  `json:"invite_code"`
}

type recurrenceDTO struct {
	Minute   int   `json:"minute"`
	Hour     int   `json:"hour"`
	Weekdays []int `json:"weekdays,omitempty"`
	MonthDay int   `json:"month_day,omitempty"`
	Month    int   `json:"month,omitempty"`
}

type eventDTO struct {
	ID              string         `json:"id"`
	CalendarID      string         `json:"calendar_id"`
	Name            string         `json:"name"`
	Start           time.Time      `json:"start"`
	End             time.Time      `json:"end"`
	AllDay          bool           `json:"all_day"`
	Location        string         `json:"location,omitempty"`
	Description     string         `json:"description,omitempty"`
	FirstReminderS  *int64         `json:"first_reminder_seconds,omitempty"`
	SecondReminderS *int64         `json:"second_reminder_seconds,omitempty"`
	Priority        int            `json:"priority"`
	Recurrence      *recurrenceDTO `json:"recurrence,omitempty"`
	RecurrenceEnd   *time.Time     `json:"recurrence_end,omitempty"`
	SuppressedDates []string       `json:"suppressed_dates,omitempty"`
	ImageRef        *string        `json:"image_ref,omitempty"`
}

type groupDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
}

func calendarToDTO(c persistence.Calendar) calendarDTO {
	return calendarDTO{
		ID:          c.ID,
		OwnerUserID: c.OwnerUserID,
		GroupID:     c.GroupID,
		Title:       c.Title,
		Color:       c.Color,
		Public:      c.Public,
		InviteCode:  c.InviteCode,
	}
}

func calendarFromDTO(d calendarDTO) persistence.Calendar {
	return persistence.Calendar{
		ID:          d.ID,
		OwnerUserID: d.OwnerUserID,
		GroupID:     d.GroupID,
		Title:       d.Title,
		Color:       d.Color,
		Public:      d.Public,
		InviteCode:  d.InviteCode,
	}
}

func eventToDTO(e persistence.Event) eventDTO {
	d := eventDTO{
		ID:              e.ID,
		CalendarID:      e.CalendarID,
		Name:            e.Name,
		Start:           e.Start,
		End:             e.End,
		AllDay:          e.AllDay,
		Location:        e.Location,
		Description:     e.Description,
		Priority:        e.Priority,
		RecurrenceEnd:   e.RecurrenceEnd,
		SuppressedDates: e.SuppressedDates,
		ImageRef:        e.ImageRef,
	}
	if e.FirstReminder != nil {
		s := int64(e.FirstReminder.Seconds())
		d.FirstReminderS = &s
	}
	if e.SecondReminder != nil {
		s := int64(e.SecondReminder.Seconds())
		d.SecondReminderS = &s
	}
	if r := e.Recurrence; r != nil {
		rd := recurrenceDTO{
			Minute:   r.Minute,
			Hour:     r.Hour,
			MonthDay: r.MonthDay,
			Month:    int(r.Month),
		}
		for _, w := range r.Weekdays {
			rd.Weekdays = append(rd.Weekdays, int(w))
		}
		d.Recurrence = &rd
	}
	return d
}

func eventFromDTO(d eventDTO) persistence.Event {
	e := persistence.Event{
		ID:              d.ID,
		CalendarID:      d.CalendarID,
		Name:            d.Name,
		Start:           d.Start,
		End:             d.End,
		AllDay:          d.AllDay,
		Location:        d.Location,
		Description:     d.Description,
		Priority:        d.Priority,
		RecurrenceEnd:   d.RecurrenceEnd,
		SuppressedDates: d.SuppressedDates,
		ImageRef:        d.ImageRef,
	}
	if d.FirstReminderS != nil {
		v := time.Duration(*d.FirstReminderS) * time.Second
		e.FirstReminder = &v
	}
	if d.SecondReminderS != nil {
		v := time.Duration(*d.SecondReminderS) * time.Second
		e.SecondReminder = &v
	}
	if d.Recurrence != nil {
		r := &persistence.RecurrenceRule{
			Minute:   d.Recurrence.Minute,
			Hour:     d.Recurrence.Hour,
			MonthDay: d.Recurrence.MonthDay,
			Month:    time.Month(d.Recurrence.Month),
		}
		for _, w := range d.Recurrence.Weekdays {
			r.Weekdays = append(r.Weekdays, time.Weekday(w))
		}
		e.Recurrence = r
	}
	return e
}

func groupToDTO(g persistence.Group) groupDTO {
	return groupDTO{ID: g.ID, Name: g.Name, InviteCode: g.InviteCode}
}

func groupFromDTO(d groupDTO) persistence.Group {
	return persistence.Group{ID: d.ID, Name: d.Name, InviteCode: d.InviteCode}
}
