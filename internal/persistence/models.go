package persistence

import (
	"strings"
	"time"
)

// LocalIDPrefix marks identifiers minted on the device before the remote
// authority has assigned a canonical id.
const LocalIDPrefix = "local-"

// IsLocalID reports whether id is a device-issued temporary identifier.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Calendar represents a calendar owned by a user or by a group.
//
// At most one of OwnerUserID and GroupID is set; both may be absent only for
// a calendar that has not been persisted yet.
type Calendar struct {
	ID          string
	OwnerUserID *string
	GroupID     *string
	Title       string
	Color       string
	Public      bool
	InviteCode  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecurrenceRule is a compact schedule expression anchored to the owning
// event's UTC-normalized start minute and hour.
//
// The rule kind is derived from the populated fields: a non-empty Weekdays
// set means weekly, MonthDay with Month means yearly, MonthDay alone means
// monthly, and none of them means daily.
type RecurrenceRule struct {
	Minute   int
	Hour     int
	Weekdays []time.Weekday
	MonthDay int
	Month    time.Month
}

// Event represents a calendar entry, recurring or not.
type Event struct {
	ID                 string
	CalendarID         string
	Name               string
	Start              time.Time
	End                time.Time
	AllDay             bool
	Location           string
	Description        string
	FirstReminder      *time.Duration
	SecondReminder     *time.Duration
	Priority           int
	Recurrence         *RecurrenceRule
	RecurrenceEnd      *time.Time
	SuppressedDates    []string
	ImageRef           *string
	ReminderTriggerIDs []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsSuppressedOn reports whether the recurring definition is turned off for
// the given ISO date (YYYY-MM-DD).
func (e Event) IsSuppressedOn(isoDate string) bool {
	for _, d := range e.SuppressedDates {
		if d == isoDate {
			return true
		}
	}
	return false
}

// Group represents a set of users sharing zero or more calendars.
type Group struct {
	ID         string
	Name       string
	InviteCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MutationKind identifies the operation recorded by a mutation log entry.
type MutationKind int

const (
	// MutationUnspecified indicates the kind is not set.
	MutationUnspecified MutationKind = iota
	// MutationCreateCalendar records a calendar creation.
	MutationCreateCalendar
	// MutationUpdateCalendar records a calendar update.
	MutationUpdateCalendar
	// MutationDeleteCalendar records a calendar deletion.
	MutationDeleteCalendar
	// MutationCreateEvent records an event creation.
	MutationCreateEvent
	// MutationUpdateEvent records an event update.
	MutationUpdateEvent
	// MutationDeleteEvent records an event deletion.
	MutationDeleteEvent
	// MutationCreateGroup records a group creation.
	MutationCreateGroup
	// MutationUpdateGroup records a group update.
	MutationUpdateGroup
	// MutationDeleteGroup records a group deletion.
	MutationDeleteGroup
)

// String returns the stable wire name of the mutation kind.
func (k MutationKind) String() string {
	switch k {
	case MutationCreateCalendar:
		return "create_calendar"
	case MutationUpdateCalendar:
		return "update_calendar"
	case MutationDeleteCalendar:
		return "delete_calendar"
	case MutationCreateEvent:
		return "create_event"
	case MutationUpdateEvent:
		return "update_event"
	case MutationDeleteEvent:
		return "delete_event"
	case MutationCreateGroup:
		return "create_group"
	case MutationUpdateGroup:
		return "update_group"
	case MutationDeleteGroup:
		return "delete_group"
	default:
		return "unspecified"
	}
}

// IsCreate reports whether the kind records an entity creation.
func (k MutationKind) IsCreate() bool {
	return k == MutationCreateCalendar || k == MutationCreateEvent || k == MutationCreateGroup
}

// IsDelete reports whether the kind records an entity deletion.
func (k MutationKind) IsDelete() bool {
	return k == MutationDeleteCalendar || k == MutationDeleteEvent || k == MutationDeleteGroup
}

// Correlation ties a mutation entry back to the entity it affects.
type Correlation struct {
	// LocalID is the entity id at enqueue time, possibly temporary.
	LocalID string
	// CalendarID is the owning calendar for event mutations, possibly
	// temporary; empty for calendar and group mutations.
	CalendarID string
}

// MutationEntry is one record of the durable, strictly ordered log of
// not-yet-confirmed writes. Payload holds the full JSON snapshot of the
// entity as it stood when the mutation was enqueued, so replay overwrites
// the remote copy field by field.
type MutationEntry struct {
	Seq         int64
	Kind        MutationKind
	Payload     []byte
	Correlation Correlation
	EnqueuedAt  time.Time
}
