package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"storybook/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

var _ AIClient = (*geminiClient)(nil)

// geminiClient реализует AIClient через Google Generative AI.
// Клиент пересоздается, когда меняется ключ; старый закрывается после последнего запроса.
type geminiClient struct {
	model       string
	timeout     time.Duration
	creds       CredentialSource
	countTokens TokenCounter
	logger      *zap.Logger

	dial        func(ctx context.Context, key string) (*genai.Client, error)
	closeClient func(*genai.Client) error

	mu   sync.Mutex
	conn *geminiConn
}

// geminiConn is one genai client and the calls still using it.
type geminiConn struct {
	client  *genai.Client
	key     string
	users   int
	retired bool
}

func newGeminiClient(model string, timeout time.Duration, creds CredentialSource, counter TokenCounter, logger *zap.Logger) *geminiClient {
	return &geminiClient{
		model:       model,
		timeout:     timeout,
		creds:       creds,
		countTokens: counter,
		logger:      logger,
		dial: func(ctx context.Context, key string) (*genai.Client, error) {
			// option.WithHTTPClient отключает API key, поэтому таймаут задается через контекст
			return genai.NewClient(ctx, option.WithAPIKey(key))
		},
		closeClient: (*genai.Client).Close,
	}
}

// acquire returns the client for the current key. Every acquire needs a release.
func (c *geminiClient) acquire(ctx context.Context) (*geminiConn, error) {
	key, ok := c.creds.Credential()
	if !ok {
		return nil, domain.ErrMissingCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.key == key {
		c.conn.users++
		return c.conn, nil
	}
	client, err := c.dial(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProvider, err)
	}
	if c.conn != nil {
		c.retireLocked(c.conn)
	}
	c.conn = &geminiConn{client: client, key: key, users: 1}
	return c.conn, nil
}

func (c *geminiClient) release(conn *geminiConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.users--
	if conn.retired && conn.users == 0 {
		c.closeLocked(conn)
	}
}

// retireLocked closes conn now if idle, otherwise when its last call releases it.
func (c *geminiClient) retireLocked(conn *geminiConn) {
	conn.retired = true
	if conn.users == 0 {
		c.closeLocked(conn)
	}
}

func (c *geminiClient) closeLocked(conn *geminiConn) {
	if err := c.closeClient(conn.client); err != nil {
		c.logger.Warn("Failed to close previous Gemini client", zap.Error(err))
	}
}

func (c *geminiClient) GenerateText(ctx context.Context, req TextRequest) (string, UsageInfo, error) {
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return "", UsageInfo{}, ErrEmptyPrompt
	}
	started := time.Now()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	conn, err := c.acquire(ctx)
	if err != nil {
		observeRequest(c.model, started, err)
		return "", UsageInfo{}, err
	}
	defer c.release(conn)

	model := conn.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	if req.Params.Temperature != nil {
		model.SetTemperature(float32(*req.Params.Temperature))
	}
	if req.Params.TopP != nil {
		model.SetTopP(float32(*req.Params.TopP))
	}
	if req.Params.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*req.Params.MaxTokens))
	}

	// Gemini требует хотя бы одну часть в запросе
	input := req.UserInput
	if input == "" {
		input = "Commence."
	}

	resp, err := model.GenerateContent(ctx, genai.Text(input))
	if err != nil {
		err = classifyGeminiError(err)
		observeRequest(c.model, started, err)
		c.logger.Warn("Gemini generation failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		return "", UsageInfo{}, err
	}

	text := geminiText(resp)
	if text == "" {
		err = fmt.Errorf("%w: empty reply", domain.ErrMalformedResponse)
		observeRequest(c.model, started, err)
		return "", UsageInfo{}, err
	}

	var usage UsageInfo
	if resp.UsageMetadata != nil {
		usage = UsageInfo{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if usage.TotalTokens == 0 {
		if estimated, ok := estimateUsage(c.countTokens, c.model, req, text); ok {
			usage = estimated
		}
	}
	observeRequest(c.model, started, nil)
	observeUsage(c.model, usage)

	c.logger.Info("Gemini reply received",
		zap.Duration("duration", time.Since(started)),
		zap.Int("replyLength", len(text)),
		zap.Int("totalTokens", usage.TotalTokens))
	return text, usage, nil
}

func (c *geminiClient) GenerateSpeech(context.Context, SpeechRequest) ([]byte, error) {
	return nil, domain.ErrSpeechUnsupported
}

// Close releases the cached Gemini client. A client still serving a call
// is closed when that call returns.
func (c *geminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn := c.conn
	if conn == nil {
		return nil
	}
	c.conn = nil
	conn.retired = true
	if conn.users > 0 {
		return nil
	}
	return c.closeClient(conn.client)
}

func geminiText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// только первый кандидат
		break
	}
	return b.String()
}

func classifyGeminiError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		// Gemini отвечает 400 API_KEY_INVALID на неверный ключ
		if gerr.Code == 400 && strings.Contains(gerr.Message, "API key not valid") {
			return domain.ErrInvalidCredential
		}
		return domain.ClassifyStatus(gerr.Code, gerr.Message)
	}
	return transportError(err)
}
