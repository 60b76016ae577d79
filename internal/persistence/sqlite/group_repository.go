package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/localcal/internal/persistence"
)

// GetGroup retrieves a group by id.
func (s *Store) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, invite_code, created_at, updated_at FROM groups WHERE id = ?`, id)
	return scanGroup(row)
}

// UpsertGroup inserts or replaces the stored group.
func (s *Store) UpsertGroup(ctx context.Context, group persistence.Group) error {
	if group.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, invite_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			invite_code = excluded.invite_code,
			updated_at  = excluded.updated_at`,
		group.ID, group.Name, group.InviteCode, formatTime(group.CreatedAt), formatTime(group.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert group %s: %w", group.ID, err)
	}
	return nil
}

// DeleteGroup removes the group; owned calendars and their events are
// removed by cascade.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListGroups returns all groups ordered by creation time.
func (s *Store) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, invite_code, created_at, updated_at FROM groups ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []persistence.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func scanGroup(row rowScanner) (persistence.Group, error) {
	var (
		g                persistence.Group
		created, updated string
	)
	err := row.Scan(&g.ID, &g.Name, &g.InviteCode, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Group{}, persistence.ErrNotFound
		}
		return persistence.Group{}, fmt.Errorf("scan group: %w", err)
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return persistence.Group{}, err
	}
	if g.UpdatedAt, err = parseTime(updated); err != nil {
		return persistence.Group{}, err
	}
	return g, nil
}
