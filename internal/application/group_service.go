package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/localcal/internal/persistence"
	"github.com/example/localcal/internal/reminder"
	"github.com/example/localcal/internal/remote"
	"github.com/example/localcal/internal/syncengine"
	"github.com/example/localcal/internal/viewcache"
)

// GroupInput carries the caller-supplied fields of a group mutation.
type GroupInput struct {
	Name string
}

// GroupService is the mutation entry point for groups.
type GroupService struct {
	mu        sync.Mutex
	store     persistence.Store
	cache     *viewcache.Cache
	remote    remote.Client
	engine    *syncengine.Engine
	reminders *reminder.Scheduler
	online    syncengine.ConnectivityProbe
	newID     func() string
	now       func() time.Time
	logger    *slog.Logger
}

// NewGroupService wires dependencies for group operations.
func NewGroupService(store persistence.Store, cache *viewcache.Cache, client remote.Client, engine *syncengine.Engine, reminders *reminder.Scheduler, online syncengine.ConnectivityProbe, newID func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if online == nil {
		online = func() bool { return true }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupService{
		store:     store,
		cache:     cache,
		remote:    client,
		engine:    engine,
		reminders: reminders,
		online:    online,
		newID:     newID,
		now:       now,
		logger:    logger,
	}
}

// CreateGroup creates a group locally and hands it to the remote
// authority, or queues the creation while offline.
func (s *GroupService) CreateGroup(ctx context.Context, input GroupInput) (persistence.Group, error) {
	if strings.TrimSpace(input.Name) == "" {
		vErr := &ValidationError{}
		vErr.Add("name", "must not be empty")
		return persistence.Group{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	group := persistence.Group{
		ID:         NewLocalID(s.newID),
		Name:       strings.TrimSpace(input.Name),
		InviteCode: newInviteCode(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	token := s.cache.ApplyOptimistic(viewcache.KeyGroups, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.GroupList)
		return list.Upsert(group)
	})
	if err := s.store.UpsertGroup(ctx, group); err != nil {
		s.cache.Rollback(token)
		return persistence.Group{}, fmt.Errorf("store group: %w", err)
	}

	commit := func() (persistence.Group, error) {
		_, err := s.store.Enqueue(ctx, persistence.MutationCreateGroup, mustPayload(group), persistence.Correlation{LocalID: group.ID})
		if err != nil {
			s.cache.Rollback(token)
			_ = s.store.DeleteGroup(ctx, group.ID)
			return persistence.Group{}, fmt.Errorf("queue group creation: %w", err)
		}
		s.settle(token)
		return group, nil
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		s.cache.Rollback(token)
		_ = s.store.DeleteGroup(ctx, group.ID)
		return persistence.Group{}, err
	}
	if !direct {
		return commit()
	}

	created, err := s.remote.CreateGroup(ctx, group)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		s.cache.Rollback(token)
		_ = s.store.DeleteGroup(ctx, group.ID)
		return persistence.Group{}, err
	}
	if err := s.adopt(ctx, group.ID, created); err != nil {
		return persistence.Group{}, err
	}
	s.settle(token)
	return s.store.GetGroup(ctx, created.ID)
}

// UpdateGroup renames a group.
func (s *GroupService) UpdateGroup(ctx context.Context, id string, input GroupInput) (persistence.Group, error) {
	if strings.TrimSpace(input.Name) == "" {
		vErr := &ValidationError{}
		vErr.Add("name", "must not be empty")
		return persistence.Group{}, vErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return persistence.Group{}, err
	}
	updated := previous
	updated.Name = strings.TrimSpace(input.Name)
	updated.UpdatedAt = s.now()

	token := s.cache.ApplyOptimistic(viewcache.KeyGroups, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.GroupList)
		return list.Upsert(updated)
	})
	if err := s.store.UpsertGroup(ctx, updated); err != nil {
		s.cache.Rollback(token)
		return persistence.Group{}, fmt.Errorf("store group: %w", err)
	}

	revert := func(cause error) (persistence.Group, error) {
		s.cache.Rollback(token)
		_ = s.store.UpsertGroup(ctx, previous)
		return persistence.Group{}, cause
	}

	commit := func() (persistence.Group, error) {
		_, err := s.store.Enqueue(ctx, persistence.MutationUpdateGroup, mustPayload(updated), persistence.Correlation{LocalID: updated.ID})
		if err != nil {
			return revert(fmt.Errorf("queue group update: %w", err))
		}
		s.settle(token)
		return updated, nil
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		return revert(err)
	}
	if !direct {
		return commit()
	}

	serverCopy, err := s.remote.UpdateGroup(ctx, updated)
	if err != nil {
		if remote.IsTransient(err) {
			return commit()
		}
		return revert(err)
	}
	if err := s.adopt(ctx, updated.ID, serverCopy); err != nil {
		return persistence.Group{}, err
	}
	s.settle(token)
	return s.store.GetGroup(ctx, serverCopy.ID)
}

// DeleteGroup removes a group; its calendars and their events go with it.
// Triggers installed for those cascaded events are cancelled once the
// deletion is settled.
func (s *GroupService) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := s.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	doomed, err := s.cascadedEvents(ctx, id)
	if err != nil {
		return err
	}

	token := s.cache.ApplyOptimistic(viewcache.KeyGroups, func(v viewcache.Value) viewcache.Value {
		list, _ := v.(*viewcache.GroupList)
		return list.Remove(id)
	})
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		s.cache.Rollback(token)
		return fmt.Errorf("delete group: %w", err)
	}
	// Calendar and event projections for the cascaded rows are stale now.
	s.cache.Invalidate(viewcache.KeyCalendars)

	revert := func(cause error) error {
		s.cache.Rollback(token)
		_ = s.store.UpsertGroup(ctx, previous)
		return cause
	}

	finish := func() error {
		s.settle(token)
		cancelCascadedReminders(ctx, s.reminders, doomed, s.logger)
		return nil
	}

	commit := func() error {
		_, err := s.store.Enqueue(ctx, persistence.MutationDeleteGroup, nil, persistence.Correlation{LocalID: id})
		if err != nil {
			return revert(fmt.Errorf("queue group deletion: %w", err))
		}
		return finish()
	}

	direct, err := s.canDispatchDirectly(ctx)
	if err != nil {
		return revert(err)
	}
	if !direct {
		return commit()
	}

	if err := s.remote.DeleteGroup(ctx, id); err != nil {
		switch {
		case remote.IsTransient(err):
			return commit()
		case remote.CategoryOf(err) == remote.CategoryNotFound:
			// Already gone server-side.
		default:
			return revert(err)
		}
	}
	return finish()
}

// cascadedEvents collects the events of every calendar owned by the group,
// the rows a group deletion removes through the foreign-key cascade.
func (s *GroupService) cascadedEvents(ctx context.Context, groupID string) ([]persistence.Event, error) {
	calendars, err := s.store.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range calendars {
		if c.GroupID != nil && *c.GroupID == groupID {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.ListEvents(ctx, persistence.EventFilter{CalendarIDs: ids})
}

// ListGroups serves the group collection: cache, store, remote refresh.
func (s *GroupService) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	if v, ok := s.cache.Read(viewcache.KeyGroups); ok {
		if list, _ := v.(*viewcache.GroupList); list != nil {
			return list.Groups, nil
		}
	}
	if s.online() && s.engine != nil {
		groups, err := s.engine.ReconcileGroups(ctx)
		if err == nil {
			return groups, nil
		}
		if !remote.IsTransient(err) && !errors.Is(err, syncengine.ErrAuthRequired) {
			return nil, err
		}
		s.logger.Debug("remote refresh unavailable, serving local state", "error", err)
	}
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Put(viewcache.KeyGroups, &viewcache.GroupList{Groups: groups})
	return groups, nil
}

func (s *GroupService) canDispatchDirectly(ctx context.Context) (bool, error) {
	if !s.online() {
		return false, nil
	}
	pending, err := hasPendingMutations(ctx, s.store)
	if err != nil {
		return false, err
	}
	return !pending, nil
}

func (s *GroupService) adopt(ctx context.Context, localID string, server persistence.Group) error {
	if persistence.IsLocalID(localID) && localID != server.ID {
		if err := s.store.RemapLocalID(ctx, localID, server.ID); err != nil {
			return err
		}
		s.cache.RemapID(localID, server.ID)
	}
	merged := server
	merged.CreatedAt = s.now()
	if existing, err := s.store.GetGroup(ctx, server.ID); err == nil {
		merged.CreatedAt = existing.CreatedAt
	}
	merged.UpdatedAt = s.now()
	return s.store.UpsertGroup(ctx, merged)
}

func (s *GroupService) settle(token viewcache.Token) {
	s.cache.Release(token)
	s.cache.Invalidate(viewcache.KeyGroups)
}
