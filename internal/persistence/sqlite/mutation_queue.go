package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/localcal/internal/persistence"
)

// Enqueue durably appends a mutation entry and returns its sequence number.
func (s *Store) Enqueue(ctx context.Context, kind persistence.MutationKind, payload []byte, correlation persistence.Correlation) (int64, error) {
	if kind == persistence.MutationUnspecified {
		return 0, persistence.ErrConstraintViolation
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mutation_queue (kind, payload, local_id, calendar_id, enqueued_at)
		VALUES (?, ?, ?, ?, ?)`,
		kind.String(), string(payload), correlation.LocalID, correlation.CalendarID, formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: read sequence: %w", kind, err)
	}
	return seq, nil
}

// PeekOldest returns the pending entry with the smallest sequence number.
func (s *Store) PeekOldest(ctx context.Context) (persistence.MutationEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, kind, payload, local_id, calendar_id, enqueued_at
		FROM mutation_queue ORDER BY seq LIMIT 1`)
	entry, err := scanMutationEntry(row)
	if errors.Is(err, persistence.ErrNotFound) {
		return persistence.MutationEntry{}, persistence.ErrQueueEmpty
	}
	return entry, err
}

// Remove deletes the entry with the given sequence number.
func (s *Store) Remove(ctx context.Context, seq int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("remove queue entry %d: %w", seq, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListAll returns every pending entry in sequence order.
func (s *Store) ListAll(ctx context.Context) ([]persistence.MutationEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, payload, local_id, calendar_id, enqueued_at
		FROM mutation_queue ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []persistence.MutationEntry
	for rows.Next() {
		entry, err := scanMutationEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanMutationEntry(row rowScanner) (persistence.MutationEntry, error) {
	var (
		entry    persistence.MutationEntry
		kind     string
		payload  string
		enqueued string
	)
	err := row.Scan(&entry.Seq, &kind, &payload, &entry.Correlation.LocalID, &entry.Correlation.CalendarID, &enqueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.MutationEntry{}, persistence.ErrNotFound
		}
		return persistence.MutationEntry{}, fmt.Errorf("scan queue entry: %w", err)
	}
	entry.Kind, err = mutationKindFromString(kind)
	if err != nil {
		return persistence.MutationEntry{}, err
	}
	entry.Payload = []byte(payload)
	if entry.EnqueuedAt, err = parseTime(enqueued); err != nil {
		return persistence.MutationEntry{}, err
	}
	return entry, nil
}

func mutationKindFromString(v string) (persistence.MutationKind, error) {
	for k := persistence.MutationCreateCalendar; k <= persistence.MutationDeleteGroup; k++ {
		if k.String() == v {
			return k, nil
		}
	}
	return persistence.MutationUnspecified, fmt.Errorf("unknown mutation kind %q", v)
}
