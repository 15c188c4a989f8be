// Package flow holds the wizard state machines that drive the character and theme stores.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storybook/internal/domain"

	"github.com/google/uuid"
	"github.com/orsinium-labs/enum"
	"go.uber.org/zap"
)

// CharacterStep enum

type CharacterStep enum.Member[string]

var (
	StepChoosingGender  = CharacterStep{"choosing-gender"}
	StepEnteringName    = CharacterStep{"entering-name"}
	StepChoosingAge     = CharacterStep{"choosing-age"}
	StepChoosingEmotion = CharacterStep{"choosing-emotion"}
	StepReviewingList   = CharacterStep{"reviewing-list"}
	CharacterSteps      = enum.New(StepChoosingGender, StepEnteringName, StepChoosingAge, StepChoosingEmotion, StepReviewingList)
)

// wizardOrder is the linear part of the flow; reviewing-list sits outside it.
var wizardOrder = []CharacterStep{StepChoosingGender, StepEnteringName, StepChoosingAge, StepChoosingEmotion}

func ParseCharacterStep(s string) (CharacterStep, error) {
	step := CharacterSteps.Parse(s)
	if step == nil {
		return CharacterStep{}, fmt.Errorf("%w: unknown step %q", domain.ErrStepLocked, s)
	}
	return *step, nil
}

func (s CharacterStep) String() string { return s.Value }

func (s CharacterStep) MarshalText() ([]byte, error) { return []byte(s.Value), nil }

func (s *CharacterStep) UnmarshalText(b []byte) error {
	v, err := ParseCharacterStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s CharacterStep) index() int {
	for i, step := range wizardOrder {
		if step == s {
			return i
		}
	}
	return -1
}

// CharacterWriter is the part of the character store the flow drives.
type CharacterWriter interface {
	Characters() []domain.Character
	Draft() domain.CharacterDraft
	SetGender(ctx context.Context, g domain.Gender) error
	SetName(ctx context.Context, name string) error
	SetAge(ctx context.Context, age int) error
	SetEmotion(ctx context.Context, e domain.Emotion) error
	ResetDraft(ctx context.Context) error
	SaveDraft(ctx context.Context) (domain.Character, error)
	Select(ctx context.Context, id uuid.UUID) error
}

// CharacterFlowState is a snapshot for callers.
type CharacterFlowState struct {
	Step     CharacterStep         `json:"step"`
	Finished bool                  `json:"finished"`
	Draft    domain.CharacterDraft `json:"draft"`
	Missing  []string              `json:"missing"`
}

// CharacterFlow is the character creation wizard.
type CharacterFlow struct {
	store  CharacterWriter
	logger *zap.Logger

	mu       sync.Mutex
	step     CharacterStep
	finished bool
}

// NewCharacterFlow opens on the list when characters already exist.
func NewCharacterFlow(store CharacterWriter, logger *zap.Logger) *CharacterFlow {
	f := &CharacterFlow{store: store, logger: logger.Named("CharacterFlow")}
	f.step = f.entryStep()
	return f
}

func (f *CharacterFlow) entryStep() CharacterStep {
	if len(f.store.Characters()) > 0 {
		return StepReviewingList
	}
	return StepChoosingGender
}

func (f *CharacterFlow) State() CharacterFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *CharacterFlow) stateLocked() CharacterFlowState {
	draft := f.store.Draft()
	return CharacterFlowState{
		Step:     f.step,
		Finished: f.finished,
		Draft:    draft,
		Missing:  draft.Missing(),
	}
}

func (f *CharacterFlow) Step() CharacterStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Finished reports that a character was chosen and the theme flow can begin.
func (f *CharacterFlow) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

// Start clears the draft and opens the wizard.
func (f *CharacterFlow) Start(ctx context.Context) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.ResetDraft(ctx); err != nil {
		return f.stateLocked(), err
	}
	f.finished = false
	f.step = f.entryStep()
	return f.stateLocked(), nil
}

// CreateAnother leaves the list and starts a fresh draft.
func (f *CharacterFlow) CreateAnother(ctx context.Context) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.ResetDraft(ctx); err != nil {
		return f.stateLocked(), err
	}
	f.finished = false
	f.step = StepChoosingGender
	return f.stateLocked(), nil
}

func (f *CharacterFlow) ChooseGender(ctx context.Context, g domain.Gender) (CharacterFlowState, error) {
	return f.submit(StepChoosingGender, func() error {
		if !domain.Genders.Contains(g) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidGender, g.Value)
		}
		return f.store.SetGender(ctx, g)
	})
}

func (f *CharacterFlow) EnterName(ctx context.Context, name string) (CharacterFlowState, error) {
	return f.submit(StepEnteringName, func() error {
		normalized, err := domain.NormalizeName(name)
		if err != nil {
			return err
		}
		return f.store.SetName(ctx, normalized)
	})
}

func (f *CharacterFlow) ChooseAge(ctx context.Context, age int) (CharacterFlowState, error) {
	return f.submit(StepChoosingAge, func() error {
		if err := domain.ValidateAge(age); err != nil {
			return err
		}
		return f.store.SetAge(ctx, age)
	})
}

// ChooseEmotion completes the draft and saves it. A first character finishes
// the flow; otherwise the list is shown.
func (f *CharacterFlow) ChooseEmotion(ctx context.Context, e domain.Emotion) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.step != StepChoosingEmotion {
		return f.stateLocked(), fmt.Errorf("%w: expected %s, at %s", domain.ErrStepLocked, StepChoosingEmotion, f.step)
	}
	if !domain.Emotions.Contains(e) {
		return f.stateLocked(), fmt.Errorf("%w: %q", domain.ErrInvalidEmotion, e.Value)
	}
	hadOthers := len(f.store.Characters()) > 0
	if err := f.store.SetEmotion(ctx, e); err != nil && !errors.Is(err, domain.ErrNotPersisted) {
		return f.stateLocked(), err
	}
	saved, err := f.store.SaveDraft(ctx)
	if errors.Is(err, domain.ErrNotPersisted) {
		// персонаж уже в памяти, шаг завершен
		f.logger.Warn("Character saved but not persisted", zap.String("characterID", saved.ID.String()), zap.Error(err))
	} else if err != nil {
		return f.stateLocked(), err
	}

	if hadOthers {
		f.step = StepReviewingList
	} else {
		f.finished = true
	}
	f.logger.Info("Character created",
		zap.String("characterID", saved.ID.String()),
		zap.Bool("finished", f.finished))
	return f.stateLocked(), nil
}

// Proceed selects a character from the list and finishes the flow.
func (f *CharacterFlow) Proceed(ctx context.Context, id uuid.UUID) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.Select(ctx, id); err != nil {
		return f.stateLocked(), err
	}
	f.finished = true
	return f.stateLocked(), nil
}

// GoTo moves to another step. Going back is always allowed; going forward
// needs every earlier field of the draft.
func (f *CharacterFlow) GoTo(target CharacterStep) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if target == StepReviewingList {
		if len(f.store.Characters()) == 0 {
			return f.stateLocked(), fmt.Errorf("%w: no characters to review", domain.ErrStepLocked)
		}
		f.step = target
		return f.stateLocked(), nil
	}

	ti := target.index()
	if ti < 0 {
		return f.stateLocked(), fmt.Errorf("%w: unknown step %q", domain.ErrStepLocked, target.Value)
	}
	if ci := f.step.index(); ci >= 0 && ti <= ci {
		f.step = target
		return f.stateLocked(), nil
	}
	if missing := missingBefore(f.store.Draft(), ti); len(missing) > 0 {
		return f.stateLocked(), fmt.Errorf("%w: %s requires %v", domain.ErrStepLocked, target, missing)
	}
	f.step = target
	return f.stateLocked(), nil
}

func (f *CharacterFlow) submit(at CharacterStep, apply func() error) (CharacterFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != at {
		return f.stateLocked(), fmt.Errorf("%w: expected %s, at %s", domain.ErrStepLocked, at, f.step)
	}
	if err := apply(); err != nil {
		return f.stateLocked(), err
	}
	f.step = wizardOrder[at.index()+1]
	return f.stateLocked(), nil
}

// missingBefore lists the draft fields a step needs, in wizard order.
func missingBefore(d domain.CharacterDraft, stepIndex int) []string {
	var missing []string
	fields := []bool{d.Gender != nil, d.Name != nil, d.Age != nil}
	names := []string{"gender", "name", "age"}
	for i := 0; i < stepIndex && i < len(fields); i++ {
		if !fields[i] {
			missing = append(missing, names[i])
		}
	}
	return missing
}
