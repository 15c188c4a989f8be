package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"storybook/internal/config"
	"storybook/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

func TestOllamaGenerateText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"model":"llama3","message":{"role":"assistant","content":"[]"},"done":true,"prompt_eval_count":30,"eval_count":70}`)
	}))
	defer srv.Close()

	client, err := newOllamaClient(srv.URL+"/v1", "llama3", srv.Client(), zap.NewNop())
	require.NoError(t, err)

	text, usage, err := client.GenerateText(context.Background(), TextRequest{
		SystemPrompt: "system",
		UserInput:    "write",
		Params:       GenerationParams{Temperature: floatPtr(0.8), MaxTokens: intPtr(2000)},
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", text)
	assert.Equal(t, UsageInfo{PromptTokens: 30, CompletionTokens: 70, TotalTokens: 100}, usage)

	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, false, got["stream"])
	options, ok := got["options"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.8, options["temperature"], 1e-9)
	assert.EqualValues(t, 2000, options["num_predict"])
}

func TestProvidersWithoutSpeech(t *testing.T) {
	ollama, err := newOllamaClient("http://localhost:11434", "llama3", http.DefaultClient, zap.NewNop())
	require.NoError(t, err)
	_, err = ollama.GenerateSpeech(context.Background(), SpeechRequest{Text: "x", Voice: domain.VoiceNova})
	assert.ErrorIs(t, err, domain.ErrSpeechUnsupported)

	gemini := newGeminiClient("gemini-1.5-flash", 0, staticCreds("k"), nil, zap.NewNop())
	_, err = gemini.GenerateSpeech(context.Background(), SpeechRequest{Text: "x", Voice: domain.VoiceNova})
	assert.ErrorIs(t, err, domain.ErrSpeechUnsupported)
}

func TestGeminiMissingCredential(t *testing.T) {
	gemini := newGeminiClient("gemini-1.5-flash", 0, staticCreds(""), nil, zap.NewNop())
	_, _, err := gemini.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.NoError(t, gemini.Close())
}

func TestClassifyOllamaError(t *testing.T) {
	err := classifyOllamaError(fmt.Errorf("chat: %w", api.StatusError{StatusCode: 429, ErrorMessage: "busy"}))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	err = classifyOllamaError(api.StatusError{StatusCode: 404, ErrorMessage: "model not found"})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "model not found", perr.Message)

	err = classifyOllamaError(errors.New("connection refused"))
	assert.ErrorIs(t, err, domain.ErrProvider)

	assert.ErrorIs(t, classifyOllamaError(context.Canceled), context.Canceled)
}

func TestClassifyGeminiError(t *testing.T) {
	err := classifyGeminiError(&googleapi.Error{Code: 400, Message: "API key not valid. Please pass a valid API key."})
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	err = classifyGeminiError(fmt.Errorf("generate: %w", &googleapi.Error{Code: 429, Message: "quota"}))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	err = classifyGeminiError(&googleapi.Error{Code: 503, Message: "overloaded"})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 503, perr.StatusCode)
}

func TestGeminiTextUsesFirstCandidate(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("[{"), genai.Text("}]")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	assert.Equal(t, "[{}]", geminiText(resp))
	assert.Empty(t, geminiText(&genai.GenerateContentResponse{}))
}

func TestNewAIClientSelectsImplementation(t *testing.T) {
	cfg := &config.Config{AIBaseURL: "http://localhost:11434", AIModel: "m", TTSModel: "tts-1"}

	for kind, want := range map[string]any{
		"openai": &openAIClient{},
		"ollama": &ollamaClient{},
		"gemini": &geminiClient{},
	} {
		cfg.AIClientType = kind
		client, err := NewAIClient(cfg, staticCreds("sk-x"), zap.NewNop())
		require.NoError(t, err, kind)
		assert.IsType(t, want, client, kind)
	}

	cfg.AIClientType = "oracle"
	_, err := NewAIClient(cfg, staticCreds("sk-x"), zap.NewNop())
	assert.Error(t, err)
}

func TestGeminiKeyRotationWaitsForInFlightCalls(t *testing.T) {
	ctx := context.Background()
	creds := &mutableCreds{key: "k1"}
	gemini := newGeminiClient("gemini-1.5-flash", 0, creds, nil, zap.NewNop())

	var dialed []string
	closed := map[*genai.Client]int{}
	gemini.dial = func(_ context.Context, key string) (*genai.Client, error) {
		dialed = append(dialed, key)
		return &genai.Client{}, nil
	}
	gemini.closeClient = func(c *genai.Client) error {
		closed[c]++
		return nil
	}

	first, err := gemini.acquire(ctx)
	require.NoError(t, err)
	again, err := gemini.acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, again)

	creds.key = "k2"
	second, err := gemini.acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, dialed)
	assert.Zero(t, closed[first.client], "old client is busy")

	gemini.release(first)
	assert.Zero(t, closed[first.client])
	gemini.release(again)
	assert.Equal(t, 1, closed[first.client], "closed after the last call")

	require.NoError(t, gemini.Close())
	assert.Zero(t, closed[second.client], "still serving a call")
	gemini.release(second)
	assert.Equal(t, 1, closed[second.client])
	assert.Equal(t, 1, closed[first.client])
}
