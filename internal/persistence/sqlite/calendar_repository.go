package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/localcal/internal/persistence"
)

// GetCalendar retrieves a calendar by id.
func (s *Store) GetCalendar(ctx context.Context, id string) (persistence.Calendar, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, group_id, title, color, public, invite_code, created_at, updated_at
		FROM calendars WHERE id = ?`, id)
	return scanCalendar(row)
}

// UpsertCalendar inserts or replaces the stored calendar. Applying the same
// calendar twice leaves the row unchanged.
func (s *Store) UpsertCalendar(ctx context.Context, calendar persistence.Calendar) error {
	if calendar.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if calendar.OwnerUserID != nil && calendar.GroupID != nil {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendars (id, owner_user_id, group_id, title, color, public, invite_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_user_id = excluded.owner_user_id,
			group_id      = excluded.group_id,
			title         = excluded.title,
			color         = excluded.color,
			public        = excluded.public,
			invite_code   = excluded.invite_code,
			updated_at    = excluded.updated_at`,
		calendar.ID,
		nullString(calendar.OwnerUserID),
		nullString(calendar.GroupID),
		calendar.Title,
		calendar.Color,
		calendar.Public,
		calendar.InviteCode,
		formatTime(calendar.CreatedAt),
		formatTime(calendar.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert calendar %s: %w", calendar.ID, err)
	}
	return nil
}

// DeleteCalendar removes the calendar; its events are removed by cascade.
func (s *Store) DeleteCalendar(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calendars WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete calendar %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListCalendars returns all calendars ordered by creation time.
func (s *Store) ListCalendars(ctx context.Context) ([]persistence.Calendar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_user_id, group_id, title, color, public, invite_code, created_at, updated_at
		FROM calendars ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	var calendars []persistence.Calendar
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, c)
	}
	return calendars, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalendar(row rowScanner) (persistence.Calendar, error) {
	var (
		c                persistence.Calendar
		owner, group     sql.NullString
		created, updated string
	)
	err := row.Scan(&c.ID, &owner, &group, &c.Title, &c.Color, &c.Public, &c.InviteCode, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Calendar{}, persistence.ErrNotFound
		}
		return persistence.Calendar{}, fmt.Errorf("scan calendar: %w", err)
	}
	c.OwnerUserID = fromNullString(owner)
	c.GroupID = fromNullString(group)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return persistence.Calendar{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.Calendar{}, err
	}
	return c, nil
}
