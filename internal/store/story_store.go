package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

// StoryState is the persisted story and reading position.
type StoryState struct {
	Story       domain.Story `json:"story"`
	CurrentPage int          `json:"currentPage"`
}

// StoryStore owns the generated story. While a story is present the page
// index stays within [0, len-1].
type StoryStore struct {
	mu       sync.RWMutex
	kv       kvstore.Store
	logger   *zap.Logger
	state    StoryState
	hydrated bool
	subs     subscribers[StoryState]
}

func NewStoryStore(kv kvstore.Store, logger *zap.Logger) *StoryStore {
	return &StoryStore{kv: kv, logger: logger.Named("StoryStore")}
}

func (s *StoryStore) Hydrate(ctx context.Context) error {
	var loaded StoryState
	err := kvstore.GetJSON(ctx, s.kv, StoryKey, &loaded)
	switch {
	case err == nil, errors.Is(err, kvstore.ErrNotFound):
	case ctx.Err() != nil:
		return err
	default:
		s.logger.Warn("Persisted story is unreadable, starting empty", zap.Error(err))
		loaded = StoryState{}
	}
	loaded.CurrentPage = clampPage(loaded.CurrentPage, len(loaded.Story))

	s.mu.Lock()
	s.state = loaded
	s.hydrated = true
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.subs.notify(snapshot)
	return nil
}

func (s *StoryStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

func (s *StoryStore) Subscribe(fn func(StoryState)) (unsubscribe func()) {
	return s.subs.add(fn)
}

func (s *StoryStore) State() StoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *StoryStore) Story() domain.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Story)
}

func (s *StoryStore) Page() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.CurrentPage
}

// SetStory replaces the story and rewinds to the first page.
func (s *StoryStore) SetStory(ctx context.Context, story domain.Story) error {
	if len(story) == 0 {
		return domain.ErrNoStory
	}
	return s.update(ctx, func(st *StoryState) error {
		st.Story = slices.Clone(story)
		st.CurrentPage = 0
		return nil
	})
}

func (s *StoryStore) Reset(ctx context.Context) error {
	return s.update(ctx, func(st *StoryState) error {
		*st = StoryState{}
		return nil
	})
}

func (s *StoryStore) SetPage(ctx context.Context, page int) error {
	return s.update(ctx, func(st *StoryState) error {
		if len(st.Story) == 0 {
			return domain.ErrNoStory
		}
		if page < 0 || page >= len(st.Story) {
			return fmt.Errorf("%w: %d not in [0, %d]", domain.ErrPageOutOfRange, page, len(st.Story)-1)
		}
		st.CurrentPage = page
		return nil
	})
}

// NextPage is a no-op on the last page.
func (s *StoryStore) NextPage(ctx context.Context) error {
	return s.move(ctx, +1)
}

// PrevPage is a no-op on the first page.
func (s *StoryStore) PrevPage(ctx context.Context) error {
	return s.move(ctx, -1)
}

func (s *StoryStore) move(ctx context.Context, delta int) error {
	s.mu.RLock()
	target := clampPage(s.state.CurrentPage+delta, len(s.state.Story))
	unchanged := target == s.state.CurrentPage
	s.mu.RUnlock()
	if unchanged {
		return nil
	}
	return s.update(ctx, func(st *StoryState) error {
		st.CurrentPage = clampPage(st.CurrentPage+delta, len(st.Story))
		return nil
	})
}

func (s *StoryStore) update(ctx context.Context, mutate func(*StoryState) error) error {
	s.mu.Lock()
	next := s.snapshotLocked()
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	snapshot := s.snapshotLocked()
	err := kvstore.SetJSON(ctx, s.kv, StoryKey, snapshot)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Failed to persist story", zap.Error(err))
		err = fmt.Errorf("%w: story: %w", domain.ErrNotPersisted, err)
	}
	s.subs.notify(snapshot)
	return err
}

func (s *StoryStore) snapshotLocked() StoryState {
	return StoryState{Story: slices.Clone(s.state.Story), CurrentPage: s.state.CurrentPage}
}

func clampPage(page, total int) int {
	if total == 0 || page < 0 {
		return 0
	}
	if page >= total {
		return total - 1
	}
	return page
}
