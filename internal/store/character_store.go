package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
)

// CharacterState is what the character store persists and publishes.
type CharacterState struct {
	Characters []domain.Character    `json:"characters"`
	Draft      domain.CharacterDraft `json:"currentCharacter"`
	SelectedID *uuid.UUID            `json:"selectedCharacterId"`
}

func (s CharacterState) clone() CharacterState {
	return CharacterState{
		Characters: slices.Clone(s.Characters),
		Draft:      copyDraft(s.Draft),
		SelectedID: copyPtr(s.SelectedID),
	}
}

func copyDraft(d domain.CharacterDraft) domain.CharacterDraft {
	return domain.CharacterDraft{
		Gender:  copyPtr(d.Gender),
		Name:    copyPtr(d.Name),
		Age:     copyPtr(d.Age),
		Emotion: copyPtr(d.Emotion),
	}
}

// rawCharacterState decodes every part separately so one bad entry
// does not take the rest of the state with it.
type rawCharacterState struct {
	Characters []json.RawMessage `json:"characters"`
	Draft      json.RawMessage   `json:"currentCharacter"`
	SelectedID *string           `json:"selectedCharacterId"`
}

func (s CharacterState) find(id uuid.UUID) (int, bool) {
	i := slices.IndexFunc(s.Characters, func(c domain.Character) bool { return c.ID == id })
	return i, i >= 0
}

// CharacterStore owns the saved characters, the draft and the selection.
type CharacterStore struct {
	mu       sync.RWMutex
	kv       kvstore.Store
	logger   *zap.Logger
	state    CharacterState
	hydrated bool
	newID    func() uuid.UUID
	subs     subscribers[CharacterState]
}

func NewCharacterStore(kv kvstore.Store, logger *zap.Logger) *CharacterStore {
	return &CharacterStore{
		kv:     kv,
		logger: logger.Named("CharacterStore"),
		newID:  uuid.New,
	}
}

// Hydrate loads the persisted state. Unreadable characters, draft or selection
// are logged and skipped one by one; the original value is kept under
// CharacterBackupKey. The store is marked hydrated either way so callers never wait forever.
func (s *CharacterStore) Hydrate(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, CharacterKey)
	switch {
	case err == nil, errors.Is(err, kvstore.ErrNotFound):
	case ctx.Err() != nil:
		return err
	default:
		s.logger.Warn("Failed to read persisted characters, starting empty", zap.Error(err))
		raw = nil
	}

	loaded, dropped := s.decodeState(raw)
	if dropped > 0 {
		if err := s.kv.Set(ctx, CharacterBackupKey, raw); err != nil {
			s.logger.Error("Failed to back up unreadable characters", zap.Error(err))
		}
	}

	// Сохранённый выбор, иначе первый персонаж
	if loaded.SelectedID != nil {
		if _, ok := loaded.find(*loaded.SelectedID); !ok {
			loaded.SelectedID = nil
		}
	}
	if loaded.SelectedID == nil && len(loaded.Characters) > 0 {
		id := loaded.Characters[0].ID
		loaded.SelectedID = &id
	}

	s.mu.Lock()
	s.state = loaded
	s.hydrated = true
	snapshot := s.state.clone()
	s.mu.Unlock()

	s.logger.Info("Characters hydrated", zap.Int("count", len(loaded.Characters)), zap.Bool("hasSelection", loaded.SelectedID != nil))
	s.subs.notify(snapshot)
	return nil
}

// decodeState returns what could be read from raw and how many parts were dropped.
func (s *CharacterStore) decodeState(raw []byte) (CharacterState, int) {
	var loaded CharacterState
	if raw == nil {
		return loaded, 0
	}
	var parts rawCharacterState
	if err := json.Unmarshal(raw, &parts); err != nil {
		s.logger.Warn("Persisted characters are unreadable, starting empty", zap.Error(err))
		return loaded, 1
	}

	dropped := 0
	for i, item := range parts.Characters {
		var c domain.Character
		err := json.Unmarshal(item, &c)
		if err == nil {
			err = c.Validate()
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable character", zap.Int("index", i), zap.Error(err))
			dropped++
			continue
		}
		loaded.Characters = append(loaded.Characters, c)
	}
	if len(parts.Draft) > 0 && string(parts.Draft) != "null" {
		if err := json.Unmarshal(parts.Draft, &loaded.Draft); err != nil {
			s.logger.Warn("Skipping unreadable character draft", zap.Error(err))
			loaded.Draft = domain.CharacterDraft{}
			dropped++
		}
	}
	if parts.SelectedID != nil {
		id, err := uuid.Parse(*parts.SelectedID)
		if err != nil {
			s.logger.Warn("Skipping unreadable selection", zap.String("selectedCharacterId", *parts.SelectedID))
			dropped++
		} else {
			loaded.SelectedID = &id
		}
	}
	return loaded, dropped
}

func (s *CharacterStore) Hydrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hydrated
}

// Subscribe registers fn for every committed change.
func (s *CharacterStore) Subscribe(fn func(CharacterState)) (unsubscribe func()) {
	return s.subs.add(fn)
}

func (s *CharacterStore) State() CharacterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *CharacterStore) Characters() []domain.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Characters)
}

func (s *CharacterStore) Draft() domain.CharacterDraft {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDraft(s.state.Draft)
}

// Selected returns a copy of the selected character.
func (s *CharacterStore) Selected() (domain.Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.SelectedID == nil {
		return domain.Character{}, false
	}
	i, ok := s.state.find(*s.state.SelectedID)
	if !ok {
		return domain.Character{}, false
	}
	return s.state.Characters[i], true
}

func (s *CharacterStore) HasSelection() bool {
	_, ok := s.Selected()
	return ok
}

func (s *CharacterStore) SetGender(ctx context.Context, g domain.Gender) error {
	if !domain.Genders.Contains(g) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidGender, g.Value)
	}
	return s.update(ctx, func(st *CharacterState) error {
		st.Draft.Gender = &g
		return nil
	})
}

// SetName stores the trimmed, capitalised name.
func (s *CharacterStore) SetName(ctx context.Context, name string) error {
	normalized, err := domain.NormalizeName(name)
	if err != nil {
		return err
	}
	return s.update(ctx, func(st *CharacterState) error {
		st.Draft.Name = &normalized
		return nil
	})
}

func (s *CharacterStore) SetAge(ctx context.Context, age int) error {
	if err := domain.ValidateAge(age); err != nil {
		return err
	}
	return s.update(ctx, func(st *CharacterState) error {
		st.Draft.Age = &age
		return nil
	})
}

func (s *CharacterStore) SetEmotion(ctx context.Context, e domain.Emotion) error {
	if !domain.Emotions.Contains(e) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEmotion, e.Value)
	}
	return s.update(ctx, func(st *CharacterState) error {
		st.Draft.Emotion = &e
		return nil
	})
}

func (s *CharacterStore) ResetDraft(ctx context.Context) error {
	return s.update(ctx, func(st *CharacterState) error {
		st.Draft = domain.CharacterDraft{}
		return nil
	})
}

// SaveDraft turns the draft into a new character, selects it and clears the draft.
// On ErrNotPersisted the character is saved in memory and returned with the error.
func (s *CharacterStore) SaveDraft(ctx context.Context) (domain.Character, error) {
	var saved domain.Character
	err := s.update(ctx, func(st *CharacterState) error {
		id := s.newID()
		for _, taken := st.find(id); taken; _, taken = st.find(id) {
			id = s.newID()
		}
		c, err := st.Draft.Build(id)
		if err != nil {
			return err
		}
		st.Characters = append(st.Characters, c)
		st.SelectedID = &c.ID
		st.Draft = domain.CharacterDraft{}
		saved = c
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		return domain.Character{}, err
	}
	s.logger.Info("Character saved", zap.String("characterID", saved.ID.String()))
	return saved, err
}

// Remove deletes a character. Removing the selected one selects the first
// remaining character, or nothing when none is left.
func (s *CharacterStore) Remove(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(st *CharacterState) error {
		i, ok := st.find(id)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrCharacterNotFound, id)
		}
		st.Characters = slices.Delete(st.Characters, i, i+1)
		if st.SelectedID != nil && *st.SelectedID == id {
			st.SelectedID = nil
			if len(st.Characters) > 0 {
				next := st.Characters[0].ID
				st.SelectedID = &next
			}
		}
		return nil
	})
}

func (s *CharacterStore) Select(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, func(st *CharacterState) error {
		if _, ok := st.find(id); !ok {
			return fmt.Errorf("%w: %s", domain.ErrCharacterNotFound, id)
		}
		st.SelectedID = &id
		return nil
	})
}

// update applies mutate to a copy, commits it and persists the whole state.
// A failed mutation changes nothing; a failed write keeps the new in-memory
// state and reports the error.
func (s *CharacterStore) update(ctx context.Context, mutate func(*CharacterState) error) error {
	s.mu.Lock()
	next := s.state.clone()
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	snapshot := next.clone()
	err := kvstore.SetJSON(ctx, s.kv, CharacterKey, snapshot)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Failed to persist characters", zap.Error(err))
		err = fmt.Errorf("%w: characters: %w", domain.ErrNotPersisted, err)
	}
	s.subs.notify(snapshot)
	return err
}
