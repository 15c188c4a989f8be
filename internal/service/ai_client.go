package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"storybook/internal/config"
	"storybook/internal/domain"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// ErrEmptyPrompt is returned before any provider call when the system prompt is blank.
var ErrEmptyPrompt = errors.New("system prompt is empty")

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_ai_requests_total",
			Help: "Total number of requests to the AI provider.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_request_duration_seconds",
			Help:    "Histogram of AI provider request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 15),
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(200, 200, 15),
		},
		[]string{"model"},
	)
	aiTotalTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_total_tokens",
			Help:    "Histogram of total token counts (prompt + completion).",
			Buckets: prometheus.LinearBuckets(300, 300, 15),
		},
		[]string{"model"},
	)
	aiSpeechBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_ai_speech_bytes",
			Help:    "Size of synthesized audio clips.",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 8),
		},
		[]string{"model"},
	)
)

// GenerationParams задает параметры модели. Указатели отличают 0 от "не задано".
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// TextRequest is one chat completion call.
type TextRequest struct {
	SystemPrompt string
	UserInput    string
	Params       GenerationParams
}

// SpeechRequest is one speech synthesis call.
type SpeechRequest struct {
	Text  string
	Voice domain.Voice
}

// UsageInfo содержит информацию об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	// Estimated is set when the provider reported nothing and the counts come from the local tokenizer.
	Estimated bool
}

// CredentialSource отдает текущий ключ провайдера. Читается на каждый вызов.
type CredentialSource interface {
	Credential() (string, bool)
}

// AIClient интерфейс для взаимодействия с AI провайдером
type AIClient interface {
	// GenerateText возвращает текст ответа модели и статистику токенов.
	GenerateText(ctx context.Context, req TextRequest) (string, UsageInfo, error)
	// GenerateSpeech возвращает аудио (mp3) как есть.
	GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

// TokenCounter counts tokens of text for a model. ok is false when no tokenizer is available.
type TokenCounter func(model, text string) (n int, ok bool)

var (
	encodingsMu sync.Mutex
	encodings   = map[string]*tiktoken.Tiktoken{}
)

// TiktokenCounter counts tokens with the BPE table of the model. The table is
// fetched once per model and cached for the process lifetime.
func TiktokenCounter(model, text string) (int, bool) {
	encodingsMu.Lock()
	enc, ok := encodings[model]
	if !ok {
		var err error
		enc, err = tiktoken.EncodingForModel(model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			encodingsMu.Unlock()
			return 0, false
		}
		encodings[model] = enc
	}
	encodingsMu.Unlock()
	return len(enc.Encode(text, nil, nil)), true
}

// estimateUsage fills prompt/completion counts locally when the provider sent none.
func estimateUsage(count TokenCounter, model string, req TextRequest, reply string) (UsageInfo, bool) {
	if count == nil {
		return UsageInfo{}, false
	}
	prompt, ok := count(model, req.SystemPrompt+"\n"+req.UserInput)
	if !ok {
		return UsageInfo{}, false
	}
	completion, ok := count(model, reply)
	if !ok {
		return UsageInfo{}, false
	}
	return UsageInfo{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
		Estimated:        true,
	}, true
}

func observeUsage(model string, usage UsageInfo) {
	if usage.TotalTokens <= 0 {
		return
	}
	aiPromptTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.PromptTokens))
	aiCompletionTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.CompletionTokens))
	aiTotalTokens.With(prometheus.Labels{"model": model}).Observe(float64(usage.TotalTokens))
}

func observeRequest(model string, started time.Time, err error) {
	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": statusLabel(err)}).Inc()
	if err == nil {
		aiRequestDuration.With(prometheus.Labels{"model": model}).Observe(time.Since(started).Seconds())
	}
}

// statusLabel сворачивает ошибку в значение метки status.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, domain.ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "empty_response"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "provider_error"
	}
}

// transportError wraps a failure that never produced a provider reply.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrProvider, err)
}

func float32Val(f *float64) float32 {
	if f == nil {
		return 0
	}
	return float32(*f)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// --- Factory Function ---

// NewAIClient создает клиент провайдера в зависимости от AI_CLIENT_TYPE.
func NewAIClient(cfg *config.Config, creds CredentialSource, logger *zap.Logger) (AIClient, error) {
	log := logger.Named("AIClient")
	httpClient := &http.Client{Timeout: cfg.AITimeout}

	switch strings.ToLower(cfg.AIClientType) {
	case "openai":
		log.Info("Using OpenAI client",
			zap.String("baseURL", cfg.AIBaseURL),
			zap.String("model", cfg.AIModel),
			zap.String("ttsModel", cfg.TTSModel),
			zap.Duration("timeout", cfg.AITimeout))
		return newOpenAIClient(cfg.AIBaseURL, cfg.AIModel, cfg.TTSModel, httpClient, creds, TiktokenCounter, log), nil
	case "ollama":
		log.Info("Using Ollama client",
			zap.String("baseURL", cfg.AIBaseURL),
			zap.String("model", cfg.AIModel),
			zap.Duration("timeout", cfg.AITimeout))
		client, err := newOllamaClient(cfg.AIBaseURL, cfg.AIModel, httpClient, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "gemini":
		log.Info("Using Gemini client",
			zap.String("model", cfg.AIModel),
			zap.Duration("timeout", cfg.AITimeout))
		return newGeminiClient(cfg.AIModel, cfg.AITimeout, creds, TiktokenCounter, log), nil
	default:
		return nil, fmt.Errorf("unsupported AI_CLIENT_TYPE: %q", cfg.AIClientType)
	}
}
