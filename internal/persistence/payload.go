package persistence

import (
	"encoding/json"
	"fmt"
)

// Mutation payloads are JSON snapshots of the full entity at enqueue time.
// Replaying a snapshot overwrites the remote copy field by field, which is
// the intended last-local-writer-wins behavior.

// EncodePayload serializes an entity snapshot for a mutation entry.
func EncodePayload(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode mutation payload: %w", err)
	}
	return b, nil
}

// DecodeCalendarPayload deserializes a calendar snapshot.
func DecodeCalendarPayload(b []byte) (Calendar, error) {
	var c Calendar
	if err := json.Unmarshal(b, &c); err != nil {
		return Calendar{}, fmt.Errorf("decode calendar payload: %w", err)
	}
	return c, nil
}

// DecodeEventPayload deserializes an event snapshot.
func DecodeEventPayload(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event payload: %w", err)
	}
	return e, nil
}

// DecodeGroupPayload deserializes a group snapshot.
func DecodeGroupPayload(b []byte) (Group, error) {
	var g Group
	if err := json.Unmarshal(b, &g); err != nil {
		return Group{}, fmt.Errorf("decode group payload: %w", err)
	}
	return g, nil
}
