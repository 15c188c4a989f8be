package flow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"storybook/internal/domain"

	"github.com/orsinium-labs/enum"
	"go.uber.org/zap"
)

// ThemeStep enum

type ThemeStep enum.Member[string]

var (
	StepChoosingMission  = ThemeStep{"choosing-mission"}
	StepChoosingLocation = ThemeStep{"choosing-location"}
	StepChoosingMorale   = ThemeStep{"choosing-morale"}
	ThemeSteps           = enum.New(StepChoosingMission, StepChoosingLocation, StepChoosingMorale)
)

func (s ThemeStep) String() string { return s.Value }

func ParseThemeStep(s string) (ThemeStep, error) {
	step := ThemeSteps.Parse(s)
	if step == nil {
		return ThemeStep{}, fmt.Errorf("%w: unknown step %q", domain.ErrStepLocked, s)
	}
	return *step, nil
}

func (s ThemeStep) MarshalText() ([]byte, error) { return []byte(s.Value), nil }

func (s *ThemeStep) UnmarshalText(b []byte) error {
	v, err := ParseThemeStep(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MissionChoice is the mission step input. Random with an empty mission lets
// the flow pick one from the catalog.
type MissionChoice struct {
	Mission string  `json:"mission"`
	Details *string `json:"details,omitempty"`
	Random  bool    `json:"random"`
}

// LocationChoice is the location step input.
type LocationChoice struct {
	Location string  `json:"location"`
	Details  *string `json:"details,omitempty"`
	Random   bool    `json:"random"`
}

// MoraleChoice is a catalog moral, a custom one, or nil for none.
type MoraleChoice struct {
	Morale *string `json:"morale"`
}

// ThemeWriter is the part of the theme store the flow drives.
type ThemeWriter interface {
	Selection() domain.ThemeSelection
	SetMission(ctx context.Context, mission string, details *string, random bool) error
	SetLocation(ctx context.Context, location string, details *string, random bool) error
	SetMorale(ctx context.Context, morale *string) error
}

// SelectionChecker reports whether a character is selected.
type SelectionChecker interface {
	HasSelection() bool
}

type ThemeFlowState struct {
	Step      ThemeStep             `json:"step"`
	Finished  bool                  `json:"finished"`
	Selection domain.ThemeSelection `json:"selection"`
}

// ThemeFlow is the three-step theme wizard. Finishing the morale step closes Done().
type ThemeFlow struct {
	theme  ThemeWriter
	chars  SelectionChecker
	pick   func(n int) int
	logger *zap.Logger

	mu       sync.Mutex
	step     ThemeStep
	finished bool
	done     chan struct{}
}

// NewThemeFlow creates the flow. pick returns a value in [0, n); nil uses math/rand.
func NewThemeFlow(theme ThemeWriter, chars SelectionChecker, pick func(n int) int, logger *zap.Logger) *ThemeFlow {
	if pick == nil {
		pick = rand.IntN
	}
	return &ThemeFlow{
		theme:  theme,
		chars:  chars,
		pick:   pick,
		logger: logger.Named("ThemeFlow"),
		step:   StepChoosingMission,
		done:   make(chan struct{}),
	}
}

func (f *ThemeFlow) State() ThemeFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *ThemeFlow) stateLocked() ThemeFlowState {
	return ThemeFlowState{Step: f.step, Finished: f.finished, Selection: f.theme.Selection()}
}

func (f *ThemeFlow) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

// Done is closed when the morale step completes.
func (f *ThemeFlow) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Start rewinds to the mission step.
func (f *ThemeFlow) Start() (ThemeFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.chars.HasSelection() {
		return f.stateLocked(), domain.ErrNoCharacterSelected
	}
	f.step = StepChoosingMission
	f.reopenLocked()
	return f.stateLocked(), nil
}

// Rewind returns to the mission step without checking the character,
// e.g. after the theme store was reset.
func (f *ThemeFlow) Rewind() ThemeFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = StepChoosingMission
	f.reopenLocked()
	return f.stateLocked()
}

func (f *ThemeFlow) ChooseMission(ctx context.Context, c MissionChoice) (ThemeFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expectLocked(StepChoosingMission); err != nil {
		return f.stateLocked(), err
	}

	mission := strings.TrimSpace(c.Mission)
	if mission == "" && c.Random {
		mission = domain.Missions[f.pick(len(domain.Missions))]
	}
	if err := domain.ValidateMission(mission, c.Details, c.Random); err != nil {
		return f.stateLocked(), err
	}
	if err := f.theme.SetMission(ctx, mission, trimmed(c.Details), c.Random); err != nil {
		return f.stateLocked(), err
	}
	f.step = StepChoosingLocation
	return f.stateLocked(), nil
}

func (f *ThemeFlow) ChooseLocation(ctx context.Context, c LocationChoice) (ThemeFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expectLocked(StepChoosingLocation); err != nil {
		return f.stateLocked(), err
	}

	location := strings.TrimSpace(c.Location)
	if location == "" && c.Random {
		location = domain.LocationSurprise
	}
	if err := domain.ValidateLocation(location, c.Details, c.Random); err != nil {
		return f.stateLocked(), err
	}
	if err := f.theme.SetLocation(ctx, location, trimmed(c.Details), c.Random); err != nil {
		return f.stateLocked(), err
	}
	f.step = StepChoosingMorale
	return f.stateLocked(), nil
}

// ChooseMorale stores the moral and completes the flow.
func (f *ThemeFlow) ChooseMorale(ctx context.Context, c MoraleChoice) (ThemeFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expectLocked(StepChoosingMorale); err != nil {
		return f.stateLocked(), err
	}
	if c.Morale != nil && strings.TrimSpace(*c.Morale) == "" {
		return f.stateLocked(), domain.ErrInvalidMorale
	}
	if err := f.theme.SetMorale(ctx, trimmed(c.Morale)); err != nil {
		return f.stateLocked(), err
	}
	if !f.finished {
		f.finished = true
		close(f.done)
	}
	f.logger.Info("Theme chosen", zap.String("mission", f.theme.Selection().Mission))
	return f.stateLocked(), nil
}

// Next moves forward when the current step's value is set.
func (f *ThemeFlow) Next() (ThemeFlowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := f.theme.Selection()
	switch f.step {
	case StepChoosingMission:
		if !sel.HasMission() {
			return f.stateLocked(), fmt.Errorf("%w: mission is not set", domain.ErrStepLocked)
		}
		f.step = StepChoosingLocation
	case StepChoosingLocation:
		if !sel.HasLocation() {
			return f.stateLocked(), fmt.Errorf("%w: location is not set", domain.ErrStepLocked)
		}
		f.step = StepChoosingMorale
	default:
		return f.stateLocked(), fmt.Errorf("%w: %s is the last step", domain.ErrStepLocked, f.step)
	}
	return f.stateLocked(), nil
}

// Back is always allowed; at the first step it does nothing.
func (f *ThemeFlow) Back() ThemeFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.step {
	case StepChoosingLocation:
		f.step = StepChoosingMission
	case StepChoosingMorale:
		f.step = StepChoosingLocation
	}
	f.reopenLocked()
	return f.stateLocked()
}

func (f *ThemeFlow) expectLocked(step ThemeStep) error {
	if !f.chars.HasSelection() {
		return domain.ErrNoCharacterSelected
	}
	if f.step != step {
		return fmt.Errorf("%w: expected %s, at %s", domain.ErrStepLocked, step, f.step)
	}
	return nil
}

// reopenLocked makes a finished flow editable again with a fresh Done channel.
func (f *ThemeFlow) reopenLocked() {
	if f.finished {
		f.finished = false
		f.done = make(chan struct{})
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
