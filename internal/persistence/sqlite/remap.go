package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// RemapLocalID replaces a temporary local id with the server-assigned id in
// every durable location that may reference it: the entity tables, event
// foreign keys (by cascade), and the correlation columns and JSON payloads
// of still-pending mutation entries. All updates commit together or not at
// all, so the entity tables and the queue never disagree about an id.
func (s *Store) RemapLocalID(ctx context.Context, localID, serverID string) error {
	if localID == "" || serverID == "" || localID == serverID {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		statements := []struct {
			query string
			args  []any
		}{
			{`UPDATE groups SET id = ? WHERE id = ?`, []any{serverID, localID}},
			{`UPDATE calendars SET id = ? WHERE id = ?`, []any{serverID, localID}},
			{`UPDATE events SET id = ? WHERE id = ?`, []any{serverID, localID}},
			{`UPDATE mutation_queue SET local_id = ? WHERE local_id = ?`, []any{serverID, localID}},
			{`UPDATE mutation_queue SET calendar_id = ? WHERE calendar_id = ?`, []any{serverID, localID}},
			// Ids appear in payloads only as whole JSON string values, so a
			// quoted replacement cannot clip another field.
			{`UPDATE mutation_queue SET payload = REPLACE(payload, ?, ?)`, []any{`"` + localID + `"`, `"` + serverID + `"`}},
		}
		for _, st := range statements {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				return fmt.Errorf("remap %s to %s: %w", localID, serverID, err)
			}
		}
		return nil
	})
}
