package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"storybook/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCreds string

func (c staticCreds) Credential() (string, bool) { return string(c), c != "" }

// fakeOpenAI records the last request and answers with the configured handler.
type fakeOpenAI struct {
	*httptest.Server
	mu       sync.Mutex
	calls    int
	lastPath string
	lastAuth string
	lastBody map[string]any
	reply    func(w http.ResponseWriter)
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls++
		f.lastPath = r.URL.Path
		f.lastAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		f.lastBody = map[string]any{}
		_ = json.Unmarshal(raw, &f.lastBody)
		f.reply(w)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOpenAI) setReply(reply func(w http.ResponseWriter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
}

func (f *fakeOpenAI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOpenAI) path() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastPath
}

func (f *fakeOpenAI) auth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *fakeOpenAI) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func jsonReply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

const chatOK = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "[{\"title\":\"A\",\"content\":\"B\"}]"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 120, "completion_tokens": 480, "total_tokens": 600}
}`

func newTestOpenAI(f *fakeOpenAI, creds CredentialSource, counter TokenCounter) *openAIClient {
	return newOpenAIClient(f.URL+"/v1", "gpt-4o-mini", "tts-1", f.Client(), creds, counter, zap.NewNop())
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestOpenAIGenerateText(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusOK, chatOK))
	client := newTestOpenAI(f, staticCreds("sk-test-123"), nil)

	text, usage, err := client.GenerateText(context.Background(), TextRequest{
		SystemPrompt: "system",
		UserInput:    "write",
		Params:       GenerationParams{Temperature: floatPtr(0.8), MaxTokens: intPtr(2000)},
	})
	require.NoError(t, err)

	assert.Equal(t, `[{"title":"A","content":"B"}]`, text)
	assert.Equal(t, UsageInfo{PromptTokens: 120, CompletionTokens: 480, TotalTokens: 600}, usage)
	assert.Equal(t, "/v1/chat/completions", f.path())
	assert.Equal(t, "Bearer sk-test-123", f.auth())
	assert.Equal(t, "gpt-4o-mini", f.body()["model"])
	assert.InDelta(t, 0.8, f.body()["temperature"], 1e-6)
	assert.EqualValues(t, 2000, f.body()["max_tokens"])

	messages, ok := f.body()["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestOpenAIReadsCredentialPerCall(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusOK, chatOK))
	creds := &mutableCreds{key: "sk-first"}
	client := newTestOpenAI(f, creds, nil)

	_, _, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-first", f.auth())

	creds.key = "sk-second"
	_, _, err = client.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-second", f.auth())
}

type mutableCreds struct{ key string }

func (c *mutableCreds) Credential() (string, bool) { return c.key, c.key != "" }

func TestOpenAIMissingCredentialSkipsRequest(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusOK, chatOK))
	client := newTestOpenAI(f, staticCreds(""), nil)

	_, _, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
	require.ErrorIs(t, err, domain.ErrMissingCredential)

	_, err = client.GenerateSpeech(context.Background(), SpeechRequest{Text: "Bonjour", Voice: domain.VoiceNova})
	require.ErrorIs(t, err, domain.ErrMissingCredential)
	assert.Zero(t, f.count())
}

func TestOpenAIEmptyPrompt(t *testing.T) {
	f := newFakeOpenAI(t)
	client := newTestOpenAI(f, staticCreds("sk-x"), nil)

	_, _, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "  "})
	require.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, f.count())
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "401 is an invalid credential",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			wantErr: domain.ErrInvalidCredential,
		},
		{
			name:    "429 is rate limiting",
			status:  http.StatusTooManyRequests,
			body:    `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantErr: domain.ErrRateLimited,
		},
		{
			name:    "500 keeps the provider message",
			status:  http.StatusInternalServerError,
			body:    `{"error":{"message":"The server had an error","type":"server_error"}}`,
			wantErr: domain.ErrProvider,
			check: func(t *testing.T, err error) {
				var perr *domain.ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, 500, perr.StatusCode)
				assert.Equal(t, "The server had an error", perr.Message)
			},
		},
		{
			name:    "unparseable body falls back to the status code",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			wantErr: domain.ErrProvider,
			check: func(t *testing.T, err error) {
				var perr *domain.ProviderError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, 502, perr.StatusCode)
				assert.Equal(t, "provider error: HTTP 502", perr.Error())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeOpenAI(t)
			f.setReply(jsonReply(tt.status, tt.body))
			client := newTestOpenAI(f, staticCreds("sk-x"), nil)

			_, _, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
			require.ErrorIs(t, err, tt.wantErr)
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestOpenAIEmptyChoicesIsMalformed(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusOK, `{"id":"x","choices":[]}`))
	client := newTestOpenAI(f, staticCreds("sk-x"), nil)

	_, _, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "s"})
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestOpenAIEstimatesUsageWhenMissing(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"un deux trois"}}]}`))
	wordCounter := func(_ string, text string) (int, bool) { return len(text), true }
	client := newTestOpenAI(f, staticCreds("sk-x"), wordCounter)

	_, usage, err := client.GenerateText(context.Background(), TextRequest{SystemPrompt: "abc", UserInput: "de"})
	require.NoError(t, err)
	assert.True(t, usage.Estimated)
	assert.Equal(t, len("abc\nde"), usage.PromptTokens)
	assert.Equal(t, len("un deux trois"), usage.CompletionTokens)
	assert.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
}

func TestOpenAIGenerateSpeech(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-fake-mp3"))
	})
	client := newTestOpenAI(f, staticCreds("sk-x"), nil)

	audio, err := client.GenerateSpeech(context.Background(), SpeechRequest{Text: "Il était une fois", Voice: domain.VoiceShimmer})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-fake-mp3"), audio)
	assert.Equal(t, "/v1/audio/speech", f.path())
	assert.Equal(t, "tts-1", f.body()["model"])
	assert.Equal(t, "shimmer", f.body()["voice"])
	assert.Equal(t, "mp3", f.body()["response_format"])
	assert.Equal(t, "Il était une fois", f.body()["input"])
}

func TestOpenAISpeechRateLimited(t *testing.T) {
	f := newFakeOpenAI(t)
	f.setReply(jsonReply(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`))
	client := newTestOpenAI(f, staticCreds("sk-x"), nil)

	_, err := client.GenerateSpeech(context.Background(), SpeechRequest{Text: "x", Voice: domain.VoiceNova})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "success", statusLabel(nil))
	assert.Equal(t, "missing_credential", statusLabel(domain.ErrMissingCredential))
	assert.Equal(t, "invalid_credential", statusLabel(domain.ErrInvalidCredential))
	assert.Equal(t, "rate_limited", statusLabel(domain.ClassifyStatus(429, "x")))
	assert.Equal(t, "provider_error", statusLabel(domain.ClassifyStatus(500, "")))
	assert.Equal(t, "canceled", statusLabel(context.Canceled))
}
