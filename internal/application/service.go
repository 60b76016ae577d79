// Package application hosts the mutation entry points. Every write follows
// the same optimistic-then-queued path: speculative view-cache transform
// with a rollback snapshot, synchronous entity-store write, then either an
// inline remote call or a durable queue append for the sync engine to
// replay.
package application

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/reminder"
)

// ValidationError collects per-field problems with a mutation request. It
// is reported to the caller before any layer is touched.
type ValidationError struct {
	Fields map[string]string
}

// Add records a problem for a field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

// HasErrors reports whether any field failed validation.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Fields[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewLocalID mints a device-local temporary identifier.
func NewLocalID(newID func() string) string {
	return persistence.LocalIDPrefix + newID()
}

// newInviteCode returns a short URL-safe share code.
func newInviteCode() string {
	var buf [5]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:]))
}

// cancelCascadedReminders drops the installed triggers of events removed by
// a cascading delete, so no notification fires for an event that no longer
// exists. Delivery failures are logged, not surfaced: the deletion itself
// already settled.
func cancelCascadedReminders(ctx context.Context, reminders *reminder.Scheduler, events []persistence.Event, logger *slog.Logger) {
	if reminders == nil {
		return
	}
	for _, ev := range events {
		if err := reminders.CancelAll(ctx, ev); err != nil {
			logger.Warn("cancel reminders for deleted event", "event", ev.ID, "error", err)
		}
	}
}

// hasPendingMutations reports whether the queue holds unconfirmed writes.
// While it does, online mutations are queued rather than dispatched
// directly so same-entity operations replay in enqueue order.
func hasPendingMutations(ctx context.Context, queue persistence.MutationQueue) (bool, error) {
	_, err := queue.PeekOldest(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, persistence.ErrQueueEmpty) {
		return false, nil
	}
	return false, err
}
