package testfixtures

import (
	"context"
	"sync"

	"github.com/example/localcal/internal/reminder"
)

// FakeNotifier records scheduled and cancelled triggers in memory.
type FakeNotifier struct {
	mu        sync.Mutex
	active    map[string]reminder.Trigger
	cancelled []string
}

// NewFakeNotifier builds an empty notifier.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{active: make(map[string]reminder.Trigger)}
}

// Schedule records an active trigger.
func (n *FakeNotifier) Schedule(_ context.Context, trigger reminder.Trigger) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active[trigger.ID] = trigger
	return nil
}

// Cancel removes a trigger; cancelling an unknown id is a no-op, matching
// real notification backends.
func (n *FakeNotifier) Cancel(_ context.Context, triggerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.active, triggerID)
	n.cancelled = append(n.cancelled, triggerID)
	return nil
}

// Active returns the currently installed triggers keyed by id.
func (n *FakeNotifier) Active() map[string]reminder.Trigger {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]reminder.Trigger, len(n.active))
	for id, t := range n.active {
		out[id] = t
	}
	return out
}

// Cancelled returns every cancelled trigger id in order.
func (n *FakeNotifier) Cancelled() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.cancelled))
	copy(out, n.cancelled)
	return out
}

var _ reminder.Notifier = (*FakeNotifier)(nil)
