package syncengine

import (
	"context"
	"fmt"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/viewcache"
)

// pendingDeletedIDs returns the ids of entities deleted offline whose
// delete mutations the remote authority has not yet acknowledged. A server
// read that predates those deletions must not resurrect them.
func (e *Engine) pendingDeletedIDs(ctx context.Context) (map[string]struct{}, error) {
	entries, err := e.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mutation queue: %w", err)
	}
	deleted := make(map[string]struct{})
	for _, entry := range entries {
		if entry.Kind.IsDelete() {
			deleted[entry.Correlation.LocalID] = struct{}{}
		}
	}
	return deleted, nil
}

// ReconcileCalendars fetches the remote calendar collection, folds every
// entity not deleted offline into the store, and returns the same filtered
// set.
func (e *Engine) ReconcileCalendars(ctx context.Context) ([]persistence.Calendar, error) {
	remoteCalendars, err := e.remote.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := e.pendingDeletedIDs(ctx)
	if err != nil {
		return nil, err
	}

	kept := make([]persistence.Calendar, 0, len(remoteCalendars))
	for _, rc := range remoteCalendars {
		if _, gone := deleted[rc.ID]; gone {
			continue
		}
		if err := e.adoptCalendar(ctx, rc.ID, rc); err != nil {
			return nil, fmt.Errorf("reconcile calendar %s: %w", rc.ID, err)
		}
		stored, err := e.store.GetCalendar(ctx, rc.ID)
		if err != nil {
			return nil, err
		}
		kept = append(kept, stored)
	}

	if e.cache != nil {
		e.cache.Put(viewcache.KeyCalendars, &viewcache.CalendarList{Calendars: kept})
	}
	return kept, nil
}

// ReconcileEvents fetches one calendar's remote events and folds them into
// the store, honoring offline deletions.
func (e *Engine) ReconcileEvents(ctx context.Context, calendarID string) ([]persistence.Event, error) {
	remoteEvents, err := e.remote.ListEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	deleted, err := e.pendingDeletedIDs(ctx)
	if err != nil {
		return nil, err
	}

	kept := make([]persistence.Event, 0, len(remoteEvents))
	for _, re := range remoteEvents {
		if _, gone := deleted[re.ID]; gone {
			continue
		}
		if err := e.adoptEvent(ctx, re.ID, re); err != nil {
			return nil, fmt.Errorf("reconcile event %s: %w", re.ID, err)
		}
		stored, err := e.store.GetEvent(ctx, re.ID)
		if err != nil {
			return nil, err
		}
		kept = append(kept, stored)
	}

	if e.cache != nil {
		e.cache.Put(viewcache.KeyEventsForCalendar(calendarID), &viewcache.EventList{Events: kept})
	}
	return kept, nil
}

// ReconcileGroups fetches the remote group collection and folds it into the
// store, honoring offline deletions.
func (e *Engine) ReconcileGroups(ctx context.Context) ([]persistence.Group, error) {
	remoteGroups, err := e.remote.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	deleted, err := e.pendingDeletedIDs(ctx)
	if err != nil {
		return nil, err
	}

	kept := make([]persistence.Group, 0, len(remoteGroups))
	for _, rg := range remoteGroups {
		if _, gone := deleted[rg.ID]; gone {
			continue
		}
		if err := e.adoptGroup(ctx, rg.ID, rg); err != nil {
			return nil, fmt.Errorf("reconcile group %s: %w", rg.ID, err)
		}
		stored, err := e.store.GetGroup(ctx, rg.ID)
		if err != nil {
			return nil, err
		}
		kept = append(kept, stored)
	}

	if e.cache != nil {
		e.cache.Put(viewcache.KeyGroups, &viewcache.GroupList{Groups: kept})
	}
	return kept, nil
}

// Sync runs one full cycle: drain the queue, then pull remote state for
// every collection. Transient failures during the pull are absorbed the
// same way the drain absorbs them.
func (e *Engine) Sync(ctx context.Context) error {
	if !e.online() {
		return nil
	}
	if err := e.Drain(ctx); err != nil {
		return err
	}

	calendars, err := e.ReconcileCalendars(ctx)
	if err != nil {
		return e.absorbTransient("reconcile calendars", err)
	}
	for _, calendar := range calendars {
		if _, err := e.ReconcileEvents(ctx, calendar.ID); err != nil {
			return e.absorbTransient("reconcile events", err)
		}
	}
	if _, err := e.ReconcileGroups(ctx); err != nil {
		return e.absorbTransient("reconcile groups", err)
	}
	return nil
}
