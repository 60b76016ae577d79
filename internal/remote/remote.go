// Package remote defines the contract with the server-side source of truth
// and the error taxonomy the sync engine's retry policy is built on.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/example/localcal/internal/persistence"
)

// Category classifies a remote failure for the drain policy.
type Category int

const (
	// CategoryUnknown covers failures the client cannot classify; treated
	// as transient so no queued intent is lost.
	CategoryUnknown Category = iota
	// CategoryTransient covers network unreachability and timeouts.
	CategoryTransient
	// CategoryNotFound means the referenced entity no longer exists
	// server-side.
	CategoryNotFound
	// CategoryAuth means the session is invalid or expired.
	CategoryAuth
	// CategoryValidation means the server rejected the payload as malformed.
	CategoryValidation
)

// String returns a short name for the category.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryNotFound:
		return "not_found"
	case CategoryAuth:
		return "auth"
	case CategoryValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a structured failure reported by the remote authority.
type Error struct {
	Category Category
	Status   int
	Message  string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote: %s (status %d): %s", e.Category, e.Status, e.Message)
	}
	return fmt.Sprintf("remote: %s: %s", e.Category, e.Message)
}

// CategoryOf extracts the failure category from err. Network-level errors,
// timeouts, and cancelled contexts classify as transient.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}
	return CategoryTransient
}

// IsTransient reports whether err should be retried on a later drain.
func IsTransient(err error) bool {
	c := CategoryOf(err)
	return c == CategoryTransient || c == CategoryUnknown
}

// Client is the transport-facing view of the remote authority. Each call
// returns the canonical server representation or an *Error.
type Client interface {
	CreateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error)
	UpdateCalendar(ctx context.Context, calendar persistence.Calendar) (persistence.Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
	ListCalendars(ctx context.Context) ([]persistence.Calendar, error)

	CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error)
	UpdateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, calendarID string) ([]persistence.Event, error)

	CreateGroup(ctx context.Context, group persistence.Group) (persistence.Group, error)
	UpdateGroup(ctx context.Context, group persistence.Group) (persistence.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	ListGroups(ctx context.Context) ([]persistence.Group, error)
}
