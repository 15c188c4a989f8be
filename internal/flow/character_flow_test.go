package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"storybook/internal/domain"
	"storybook/internal/kvstore"
	"storybook/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCharacterStore(t *testing.T) *store.CharacterStore {
	t.Helper()
	s := store.NewCharacterStore(kvstore.NewMemoryStore(), zap.NewNop())
	require.NoError(t, s.Hydrate(context.Background()))
	return s
}

// flakyKV rejects writes while broken is set.
type flakyKV struct {
	*kvstore.MemoryStore
	broken *atomic.Bool
}

func (f flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.broken.Load() {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func completeWizard(t *testing.T, f *CharacterFlow, name string) CharacterFlowState {
	t.Helper()
	ctx := context.Background()
	_, err := f.ChooseGender(ctx, domain.GenderBoy)
	require.NoError(t, err)
	_, err = f.EnterName(ctx, name)
	require.NoError(t, err)
	_, err = f.ChooseAge(ctx, 7)
	require.NoError(t, err)
	st, err := f.ChooseEmotion(ctx, domain.EmotionBrave)
	require.NoError(t, err)
	return st
}

func TestCharacterFlowFirstCharacterFinishes(t *testing.T) {
	chars := newCharacterStore(t)
	f := NewCharacterFlow(chars, zap.NewNop())
	require.Equal(t, StepChoosingGender, f.Step())

	st := completeWizard(t, f, "  hugo ")

	assert.True(t, st.Finished)
	assert.True(t, f.Finished())
	require.Len(t, chars.Characters(), 1)
	assert.Equal(t, "Hugo", chars.Characters()[0].Name)

	selected, ok := chars.Selected()
	require.True(t, ok)
	assert.Equal(t, chars.Characters()[0].ID, selected.ID)
	assert.Equal(t, domain.CharacterDraft{}, chars.Draft())
}

func TestCharacterFlowWithExistingCharactersReturnsToList(t *testing.T) {
	ctx := context.Background()
	chars := newCharacterStore(t)
	completeWizard(t, NewCharacterFlow(chars, zap.NewNop()), "Hugo")

	f := NewCharacterFlow(chars, zap.NewNop())
	require.Equal(t, StepReviewingList, f.Step(), "opens on the list when characters exist")

	_, err := f.CreateAnother(ctx)
	require.NoError(t, err)
	st := completeWizard(t, f, "Inès")

	assert.False(t, st.Finished)
	assert.Equal(t, StepReviewingList, st.Step)
	require.Len(t, chars.Characters(), 2)

	first := chars.Characters()[0]
	st, err = f.Proceed(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, st.Finished)
	selected, _ := chars.Selected()
	assert.Equal(t, first.ID, selected.ID)
}

func TestCharacterFlowStartOnList(t *testing.T) {
	ctx := context.Background()
	chars := newCharacterStore(t)
	f := NewCharacterFlow(chars, zap.NewNop())
	completeWizard(t, f, "Hugo")

	st, err := f.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, StepReviewingList, st.Step)
	assert.False(t, st.Finished)
}

func TestCharacterFlowSubmitAtWrongStep(t *testing.T) {
	ctx := context.Background()
	f := NewCharacterFlow(newCharacterStore(t), zap.NewNop())

	_, err := f.EnterName(ctx, "Hugo")
	assert.ErrorIs(t, err, domain.ErrStepLocked)

	_, err = f.ChooseEmotion(ctx, domain.EmotionHappy)
	assert.ErrorIs(t, err, domain.ErrStepLocked)
}

func TestCharacterFlowValidation(t *testing.T) {
	ctx := context.Background()
	f := NewCharacterFlow(newCharacterStore(t), zap.NewNop())

	_, err := f.ChooseGender(ctx, domain.Gender{Value: "dragon"})
	assert.ErrorIs(t, err, domain.ErrInvalidGender)
	assert.Equal(t, StepChoosingGender, f.Step())

	_, err = f.ChooseGender(ctx, domain.GenderGirl)
	require.NoError(t, err)

	_, err = f.EnterName(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	assert.Equal(t, StepEnteringName, f.Step())

	_, err = f.EnterName(ctx, "Zoé")
	require.NoError(t, err)

	_, err = f.ChooseAge(ctx, 11)
	assert.ErrorIs(t, err, domain.ErrInvalidAge)
	assert.Equal(t, StepChoosingAge, f.Step())
}

func TestCharacterFlowGoTo(t *testing.T) {
	ctx := context.Background()
	chars := newCharacterStore(t)
	f := NewCharacterFlow(chars, zap.NewNop())

	// forward without prior fields is locked
	_, err := f.GoTo(StepChoosingAge)
	assert.ErrorIs(t, err, domain.ErrStepLocked)
	_, err = f.GoTo(StepReviewingList)
	assert.ErrorIs(t, err, domain.ErrStepLocked)

	_, err = f.ChooseGender(ctx, domain.GenderGirl)
	require.NoError(t, err)
	_, err = f.EnterName(ctx, "Zoé")
	require.NoError(t, err)
	require.Equal(t, StepChoosingAge, f.Step())

	// backward is always allowed
	st, err := f.GoTo(StepChoosingGender)
	require.NoError(t, err)
	assert.Equal(t, StepChoosingGender, st.Step)

	// forward again is allowed since gender and name are set
	st, err = f.GoTo(StepChoosingAge)
	require.NoError(t, err)
	assert.Equal(t, StepChoosingAge, st.Step)

	// emotion still needs an age
	_, err = f.GoTo(StepChoosingEmotion)
	assert.ErrorIs(t, err, domain.ErrStepLocked)

	_, err = f.GoTo(CharacterStep{Value: "flying"})
	assert.ErrorIs(t, err, domain.ErrStepLocked)
}

func TestParseCharacterStep(t *testing.T) {
	step, err := ParseCharacterStep("choosing-age")
	require.NoError(t, err)
	assert.Equal(t, StepChoosingAge, step)

	_, err = ParseCharacterStep("nope")
	assert.Error(t, err)
}

func TestCharacterFlowEmotionSurvivesPersistFailure(t *testing.T) {
	ctx := context.Background()
	kv := flakyKV{MemoryStore: kvstore.NewMemoryStore(), broken: &atomic.Bool{}}
	chars := store.NewCharacterStore(kv, zap.NewNop())
	require.NoError(t, chars.Hydrate(ctx))
	f := NewCharacterFlow(chars, zap.NewNop())

	_, err := f.ChooseGender(ctx, domain.GenderGirl)
	require.NoError(t, err)
	_, err = f.EnterName(ctx, "Zoé")
	require.NoError(t, err)
	_, err = f.ChooseAge(ctx, 4)
	require.NoError(t, err)

	kv.broken.Store(true)
	st, err := f.ChooseEmotion(ctx, domain.EmotionShy)
	require.NoError(t, err)
	assert.True(t, st.Finished)
	require.Len(t, chars.Characters(), 1)
	assert.Equal(t, "Zoé", chars.Characters()[0].Name)
	assert.True(t, chars.HasSelection())
}
