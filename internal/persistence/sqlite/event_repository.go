package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/localcal/internal/persistence"
)

const eventColumns = `id, calendar_id, name, start_time, end_time, all_day, location, description,
	first_reminder_sec, second_reminder_sec, priority,
	rec_minute, rec_hour, rec_weekdays, rec_month_day, rec_month,
	recurrence_end, suppressed_dates, image_ref, reminder_trigger_ids, created_at, updated_at`

// GetEvent retrieves an event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// UpsertEvent inserts or replaces the stored event. The owning calendar must
// already exist; a dangling calendar id reports ErrConstraintViolation.
func (s *Store) UpsertEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.CalendarID == "" {
		return persistence.ErrConstraintViolation
	}
	if !event.End.IsZero() && event.End.Before(event.Start) {
		return persistence.ErrConstraintViolation
	}

	var recMinute, recHour sql.NullInt64
	var recWeekdays string
	var recMonthDay, recMonth int
	if r := event.Recurrence; r != nil {
		recMinute = sql.NullInt64{Int64: int64(r.Minute), Valid: true}
		recHour = sql.NullInt64{Int64: int64(r.Hour), Valid: true}
		recWeekdays = joinWeekdays(r.Weekdays)
		recMonthDay = r.MonthDay
		recMonth = int(r.Month)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			calendar_id          = excluded.calendar_id,
			name                 = excluded.name,
			start_time           = excluded.start_time,
			end_time             = excluded.end_time,
			all_day              = excluded.all_day,
			location             = excluded.location,
			description          = excluded.description,
			first_reminder_sec   = excluded.first_reminder_sec,
			second_reminder_sec  = excluded.second_reminder_sec,
			priority             = excluded.priority,
			rec_minute           = excluded.rec_minute,
			rec_hour             = excluded.rec_hour,
			rec_weekdays         = excluded.rec_weekdays,
			rec_month_day        = excluded.rec_month_day,
			rec_month            = excluded.rec_month,
			recurrence_end       = excluded.recurrence_end,
			suppressed_dates     = excluded.suppressed_dates,
			image_ref            = excluded.image_ref,
			reminder_trigger_ids = excluded.reminder_trigger_ids,
			updated_at           = excluded.updated_at`,
		event.ID,
		event.CalendarID,
		event.Name,
		formatTime(event.Start),
		formatTime(event.End),
		event.AllDay,
		event.Location,
		event.Description,
		nullSeconds(event.FirstReminder),
		nullSeconds(event.SecondReminder),
		event.Priority,
		recMinute,
		recHour,
		recWeekdays,
		recMonthDay,
		recMonth,
		nullTime(event.RecurrenceEnd),
		joinStrings(event.SuppressedDates),
		nullString(event.ImageRef),
		joinStrings(event.ReminderTriggerIDs),
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return persistence.ErrConstraintViolation
		}
		return fmt.Errorf("upsert event %s: %w", event.ID, err)
	}
	return nil
}

// DeleteEvent removes the event.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListEvents returns events matching the filter ordered by start time.
func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	var (
		clauses []string
		args    []any
	)
	if len(filter.CalendarIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.CalendarIDs)), ",")
		clauses = append(clauses, "calendar_id IN ("+placeholders+")")
		for _, id := range filter.CalendarIDs {
			args = append(args, id)
		}
	}
	if filter.StartsAfter != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, formatTime(*filter.StartsAfter))
	}
	if filter.EndsBefore != nil {
		clauses = append(clauses, "end_time <= ?")
		args = append(args, formatTime(*filter.EndsBefore))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		e                      persistence.Event
		start, end             string
		firstSec, secondSec    sql.NullInt64
		recMinute, recHour     sql.NullInt64
		recWeekdays            string
		recMonthDay, recMonth  int
		recurrenceEnd          sql.NullString
		suppressed, triggerIDs string
		imageRef               sql.NullString
		created, updated       string
	)
	err := row.Scan(
		&e.ID, &e.CalendarID, &e.Name, &start, &end, &e.AllDay, &e.Location, &e.Description,
		&firstSec, &secondSec, &e.Priority,
		&recMinute, &recHour, &recWeekdays, &recMonthDay, &recMonth,
		&recurrenceEnd, &suppressed, &imageRef, &triggerIDs, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, fmt.Errorf("scan event: %w", err)
	}

	if e.Start, err = parseTime(start); err != nil {
		return persistence.Event{}, err
	}
	if e.End, err = parseTime(end); err != nil {
		return persistence.Event{}, err
	}
	e.FirstReminder = fromNullSeconds(firstSec)
	e.SecondReminder = fromNullSeconds(secondSec)
	if recMinute.Valid && recHour.Valid {
		weekdays, err := splitWeekdays(recWeekdays)
		if err != nil {
			return persistence.Event{}, err
		}
		e.Recurrence = &persistence.RecurrenceRule{
			Minute:   int(recMinute.Int64),
			Hour:     int(recHour.Int64),
			Weekdays: weekdays,
			MonthDay: recMonthDay,
			Month:    time.Month(recMonth),
		}
	}
	if e.RecurrenceEnd, err = fromNullTime(recurrenceEnd); err != nil {
		return persistence.Event{}, err
	}
	e.SuppressedDates = splitStrings(suppressed)
	e.ImageRef = fromNullString(imageRef)
	e.ReminderTriggerIDs = splitStrings(triggerIDs)
	if e.CreatedAt, err = parseTime(created); err != nil {
		return persistence.Event{}, err
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.Event{}, err
	}
	return e, nil
}
