package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storybook/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	storyGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_story_generations_total",
			Help: "Story generation attempts by result.",
		},
		[]string{"result"},
	)
	storyGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storybook_story_generation_duration_seconds",
			Help:    "Duration of successful story generations.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)
)

// CharacterSource отдает выбранного героя.
type CharacterSource interface {
	Hydrated() bool
	Selected() (domain.Character, bool)
}

// ThemeSource отдает выбор мастера темы и сбрасывает его после успешной генерации.
type ThemeSource interface {
	Selection() domain.ThemeSelection
	Reset(ctx context.Context) error
}

// StorySink принимает готовую историю.
type StorySink interface {
	SetStory(ctx context.Context, story domain.Story) error
}

// StoryGenerator turns the selected character and theme into a five-part story.
// At most one attempt is live; Abandon releases it so a new one can start while
// the old request is still pending.
type StoryGenerator struct {
	ai         AIClient
	characters CharacterSource
	theme      ThemeSource
	stories    StorySink
	params     GenerationParams
	logger     *zap.Logger

	mu       sync.Mutex
	attempt  uint64
	inFlight bool
}

func NewStoryGenerator(ai AIClient, characters CharacterSource, theme ThemeSource, stories StorySink, params GenerationParams, logger *zap.Logger) *StoryGenerator {
	return &StoryGenerator{
		ai:         ai,
		characters: characters,
		theme:      theme,
		stories:    stories,
		params:     params,
		logger:     logger.Named("StoryGenerator"),
	}
}

// InProgress reports whether an attempt is live.
func (g *StoryGenerator) InProgress() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Abandon drops the live attempt. Its late reply will be discarded.
func (g *StoryGenerator) Abandon() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inFlight {
		return
	}
	g.attempt++
	g.inFlight = false
	g.logger.Info("Generation attempt abandoned", zap.Uint64("attempt", g.attempt-1))
}

// Generate runs one attempt. On any failure no store is touched.
func (g *StoryGenerator) Generate(ctx context.Context) (domain.Story, error) {
	story, err := g.generate(ctx)
	storyGenerationsTotal.WithLabelValues(generationResult(err)).Inc()
	return story, err
}

func (g *StoryGenerator) generate(ctx context.Context) (domain.Story, error) {
	if !g.characters.Hydrated() {
		return nil, domain.ErrNotHydrated
	}
	character, ok := g.characters.Selected()
	if !ok {
		return nil, fmt.Errorf("%w: no character selected", domain.ErrIncompleteCharacter)
	}
	if err := character.ValidateForStory(); err != nil {
		return nil, err
	}
	theme := g.theme.Selection()
	if err := theme.Validate(); err != nil {
		return nil, err
	}

	attempt, err := g.begin()
	if err != nil {
		return nil, err
	}
	defer g.finish(attempt)

	log := g.logger.With(zap.Uint64("attempt", attempt), zap.String("characterID", character.ID.String()))
	log.Info("Generating story",
		zap.String("mission", theme.Mission),
		zap.String("location", theme.Location),
		zap.Int("age", character.Age))

	started := time.Now()
	text, usage, err := g.ai.GenerateText(ctx, TextRequest{
		SystemPrompt: storySystemPrompt,
		UserInput:    BuildStoryPrompt(character, theme),
		Params:       g.params,
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt != attempt {
		log.Warn("Discarding reply of a superseded attempt", zap.Error(err))
		return nil, domain.ErrAttemptSuperseded
	}
	if err != nil {
		log.Warn("Story generation failed", zap.Error(err))
		return nil, err
	}

	story, err := domain.ParseStory(text)
	if err != nil {
		log.Warn("Provider reply is not a valid story", zap.Error(err), zap.Int("replyLength", len(text)))
		return nil, err
	}

	// Запись истории и сброс темы под одним замком: Abandon не вклинится между ними.
	if err := g.stories.SetStory(ctx, story); err != nil {
		log.Error("Story kept in memory but not persisted", zap.Error(err))
	}
	if err := g.theme.Reset(ctx); err != nil {
		log.Error("Theme reset not persisted", zap.Error(err))
	}

	storyGenerationDuration.Observe(time.Since(started).Seconds())
	log.Info("Story generated",
		zap.Duration("duration", time.Since(started)),
		zap.Int("totalTokens", usage.TotalTokens))
	return story, nil
}

func (g *StoryGenerator) begin() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		return 0, domain.ErrGenerationInProgress
	}
	g.attempt++
	g.inFlight = true
	return g.attempt, nil
}

func (g *StoryGenerator) finish(attempt uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt == attempt {
		g.inFlight = false
	}
}

func generationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrGenerationInProgress):
		return "in_progress"
	case errors.Is(err, domain.ErrAttemptSuperseded):
		return "superseded"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, domain.ErrNotHydrated),
		errors.Is(err, domain.ErrIncompleteCharacter),
		errors.Is(err, domain.ErrIncompleteTheme):
		return "rejected"
	default:
		return statusLabel(err)
	}
}
