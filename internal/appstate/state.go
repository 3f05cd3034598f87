// Package appstate holds the session state of one viewer: who they are,
// which space they are in, what they are searching for, and the small
// persisted flags that outlive a connection.
package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/kvstore"
	"strconv"
	"sync"
	"time"
)

// Persisted keys, namespaced per profile.
const (
	keyLastVisitedSpace = "last_visited_space_id"
	keyPushPromptShown  = "push_prompt_shown"
	keyLastActive       = "last_active_at"
	keyProfileView      = "profile_view:"
	keySearchQuery      = "search_query"
	keySelectedTags     = "selected_tags"
)

// Reader exposes the session state to components that only look at it.
type Reader interface {
	ProfileID() int64
	SpaceID() int64
	SearchQuery() string
	SelectedTags() []string
}

// Writer is handed to the components allowed to change the session.
type Writer interface {
	Reader
	SetSpace(ctx context.Context, spaceID int64) error
	SetSearchQuery(ctx context.Context, q string) error
	SetSelectedTags(ctx context.Context, tags []string) error
}

// State is the session of one profile. The in-memory fields live as long as
// the State; the persisted ones go through the key-value store.
type State struct {
	store kvstore.Store
	now   func() time.Time

	mu        sync.RWMutex
	profileID int64
	spaceID   int64
	search    string
	tags      []string
}

var _ Writer = (*State)(nil)

// New returns the session of profileID, currently in spaceID.
func New(store kvstore.Store, profileID, spaceID int64) *State {
	return &State{store: store, now: time.Now, profileID: profileID, spaceID: spaceID}
}

// WithClock replaces the time source used for cooldowns.
func (s *State) WithClock(now func() time.Time) *State {
	s.now = now
	return s
}

func (s *State) ProfileID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileID
}

func (s *State) SpaceID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spaceID
}

func (s *State) SearchQuery() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search
}

func (s *State) SelectedTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tags...)
}

// SetSearchQuery changes the directory search and keeps it for later sessions.
func (s *State) SetSearchQuery(ctx context.Context, q string) error {
	if err := s.store.Set(ctx, s.key(keySearchQuery), q, 0); err != nil {
		return fmt.Errorf("save search query: %w", err)
	}
	s.mu.Lock()
	s.search = q
	s.mu.Unlock()
	return nil
}

func (s *State) SetSelectedTags(ctx context.Context, tags []string) error {
	tags = append([]string(nil), tags...)
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, s.key(keySelectedTags), string(raw), 0); err != nil {
		return fmt.Errorf("save selected tags: %w", err)
	}
	s.mu.Lock()
	s.tags = tags
	s.mu.Unlock()
	return nil
}

// RestoreSearch loads the search query and tags saved by an earlier session.
func (s *State) RestoreSearch(ctx context.Context) error {
	q, err := s.store.Get(ctx, s.key(keySearchQuery))
	if err != nil && !errors.Is(err, kvstore.ErrMiss) {
		return err
	}
	var tags []string
	raw, err := s.store.Get(ctx, s.key(keySelectedTags))
	switch {
	case err == nil:
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return fmt.Errorf("selected tags %q: %w", raw, err)
		}
	case !errors.Is(err, kvstore.ErrMiss):
		return err
	}
	s.mu.Lock()
	s.search = q
	s.tags = tags
	s.mu.Unlock()
	return nil
}

// SetSpace switches the current space and remembers it as last visited.
func (s *State) SetSpace(ctx context.Context, spaceID int64) error {
	if spaceID <= 0 {
		return fmt.Errorf("invalid space id %d", spaceID)
	}
	if err := s.store.Set(ctx, s.key(keyLastVisitedSpace), strconv.FormatInt(spaceID, 10), 0); err != nil {
		return fmt.Errorf("save last visited space: %w", err)
	}
	s.mu.Lock()
	s.spaceID = spaceID
	s.mu.Unlock()
	return nil
}

// LastVisitedSpace returns the space remembered by SetSpace.
func (s *State) LastVisitedSpace(ctx context.Context) (int64, bool, error) {
	val, err := s.store.Get(ctx, s.key(keyLastVisitedSpace))
	if errors.Is(err, kvstore.ErrMiss) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("last visited space %q: %w", val, err)
	}
	return id, true, nil
}

// PushPromptShown reports whether the push-notification prompt was shown.
func (s *State) PushPromptShown(ctx context.Context) (bool, error) {
	_, err := s.store.Get(ctx, s.key(keyPushPromptShown))
	if errors.Is(err, kvstore.ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

// MarkPushPromptShown records that the prompt was shown.
func (s *State) MarkPushPromptShown(ctx context.Context) error {
	return s.store.Set(ctx, s.key(keyPushPromptShown), "1", 0)
}

// AcquireProfileView reports whether a view of profile viewed should be
// recorded now, and starts its cooldown if so.
func (s *State) AcquireProfileView(ctx context.Context, viewed int64) (bool, error) {
	return s.acquire(ctx, keyProfileView+strconv.FormatInt(viewed, 10), config.ProfileViewCooldown)
}

// AcquireLastActive reports whether the last-active stamp should be sent now,
// and starts its cooldown if so.
func (s *State) AcquireLastActive(ctx context.Context) (bool, error) {
	return s.acquire(ctx, keyLastActive, config.LastActiveCooldown)
}

// acquire claims name for cooldown. Only the first caller inside the window
// wins; the key expires with the cooldown.
func (s *State) acquire(ctx context.Context, name string, cooldown time.Duration) (bool, error) {
	return s.store.SetNX(ctx, s.key(name), s.now().UTC().Format(time.RFC3339Nano), cooldown)
}

func (s *State) key(name string) string {
	return "state:" + strconv.FormatInt(s.ProfileID(), 10) + ":" + name
}
