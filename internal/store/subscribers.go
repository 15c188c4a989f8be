package store

import "sync"

// Persisted state keys.
const (
	CharacterKey  = "character-storage"
	ThemeKey      = "wizard-storage"
	StoryKey      = "story-storage"
	CredentialKey = "openai-api-key"

	// CharacterBackupKey keeps a character value that could not be fully read.
	CharacterBackupKey = "character-storage-unreadable"
)

// subscribers fans a committed snapshot out to registered observers.
type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (s *subscribers[T]) add(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(T))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers[T]) notify(v T) {
	s.mu.Lock()
	fns := make([]func(T), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
