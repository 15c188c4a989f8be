package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

// ThemeStore keeps the theme being built. It stores whatever it is given:
// the theme flow validates before calling the setters.
type ThemeStore struct {
	mu       sync.RWMutex
	kv       kvstore.Store
	logger   *zap.Logger
	theme    domain.ThemeSelection
	hydrated bool
	subs     subscribers[domain.ThemeSelection]
}

func NewThemeStore(kv kvstore.Store, logger *zap.Logger) *ThemeStore {
	return &ThemeStore{kv: kv, logger: logger.Named("ThemeStore")}
}

func (s *ThemeStore) Hydrate(ctx context.Context) error {
	var loaded domain.ThemeSelection
	err := kvstore.GetJSON(ctx, s.kv, ThemeKey, &loaded)
	switch {
	case err == nil, errors.Is(err, kvstore.ErrNotFound):
	case ctx.Err() != nil:
		return err
	default:
		s.logger.Warn("Persisted theme is unreadable, starting empty", zap.Error(err))
		loaded = domain.ThemeSelection{}
	}

	s.mu.Lock()
	s.theme = loaded
	s.hydrated = true
	s.mu.Unlock()
	s.subs.notify(copyTheme(loaded))
	return nil
}

func (s *ThemeStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

func (s *ThemeStore) Subscribe(fn func(domain.ThemeSelection)) (unsubscribe func()) {
	return s.subs.add(fn)
}

// Selection returns a copy of the current theme.
func (s *ThemeStore) Selection() domain.ThemeSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTheme(s.theme)
}

func (s *ThemeStore) SetMission(ctx context.Context, mission string, details *string, random bool) error {
	return s.update(ctx, func(t *domain.ThemeSelection) {
		t.Mission = mission
		t.MissionDetails = copyPtr(details)
		t.MissionRandom = random
	})
}

func (s *ThemeStore) SetLocation(ctx context.Context, location string, details *string, random bool) error {
	return s.update(ctx, func(t *domain.ThemeSelection) {
		t.Location = location
		t.LocationDetails = copyPtr(details)
		t.LocationRandom = random
	})
}

// SetMorale stores the moral; nil means "no moral".
func (s *ThemeStore) SetMorale(ctx context.Context, morale *string) error {
	return s.update(ctx, func(t *domain.ThemeSelection) {
		t.Morale = copyPtr(morale)
	})
}

func (s *ThemeStore) Reset(ctx context.Context) error {
	return s.update(ctx, func(t *domain.ThemeSelection) {
		*t = domain.ThemeSelection{}
	})
}

func (s *ThemeStore) update(ctx context.Context, mutate func(*domain.ThemeSelection)) error {
	s.mu.Lock()
	mutate(&s.theme)
	snapshot := copyTheme(s.theme)
	err := kvstore.SetJSON(ctx, s.kv, ThemeKey, snapshot)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Failed to persist theme", zap.Error(err))
		err = fmt.Errorf("%w: theme: %w", domain.ErrNotPersisted, err)
	}
	s.subs.notify(snapshot)
	return err
}

func copyTheme(t domain.ThemeSelection) domain.ThemeSelection {
	t.MissionDetails = copyPtr(t.MissionDetails)
	t.LocationDetails = copyPtr(t.LocationDetails)
	t.Morale = copyPtr(t.Morale)
	return t
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
