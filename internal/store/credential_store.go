package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

// CredentialStore keeps the provider key as a raw string under CredentialKey.
type CredentialStore struct {
	mu       sync.RWMutex
	kv       kvstore.Store
	logger   *zap.Logger
	prefix   string
	key      string
	hydrated bool
}

// NewCredentialStore checks keys against prefix; an empty prefix accepts any key.
func NewCredentialStore(kv kvstore.Store, prefix string, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{kv: kv, prefix: prefix, logger: logger.Named("CredentialStore")}
}

func (s *CredentialStore) Hydrate(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, CredentialKey)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		if ctx.Err() != nil {
			return err
		}
		s.logger.Warn("Persisted credential is unreadable", zap.Error(err))
	}
	s.mu.Lock()
	s.key = strings.TrimSpace(string(raw))
	s.hydrated = true
	s.mu.Unlock()
	return nil
}

func (s *CredentialStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Credential returns the stored key, if any.
func (s *CredentialStore) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key, s.key != ""
}

// Set validates and stores key.
func (s *CredentialStore) Set(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" || (s.prefix != "" && !strings.HasPrefix(key, s.prefix)) {
		return fmt.Errorf("%w: expected prefix %q", domain.ErrInvalidCredentialFormat, s.prefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = key
	if err := s.kv.Set(ctx, CredentialKey, []byte(key)); err != nil {
		return fmt.Errorf("%w: credential: %w", domain.ErrNotPersisted, err)
	}
	s.logger.Info("Credential updated", zap.String("key", Mask(key)))
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = ""
	if err := s.kv.Delete(ctx, CredentialKey); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Masked returns the key with everything but its ends hidden.
func (s *CredentialStore) Masked() string {
	key, _ := s.Credential()
	return Mask(key)
}

func Mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
}
