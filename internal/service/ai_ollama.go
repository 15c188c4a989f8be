package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storybook/internal/domain"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

var _ AIClient = (*ollamaClient)(nil)

// ollamaClient реализует AIClient поверх локального Ollama. Ключ не нужен.
type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

func newOllamaClient(baseURL, model string, httpClient *http.Client, logger *zap.Logger) (*ollamaClient, error) {
	// api.NewClient ждет URL без суффикса /v1
	ollamaBaseURL := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsedURL, err := url.Parse(ollamaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL %q: %w", ollamaBaseURL, err)
	}
	return &ollamaClient{
		client: api.NewClient(parsedURL, httpClient),
		model:  model,
		logger: logger,
	}, nil
}

func (c *ollamaClient) GenerateText(ctx context.Context, req TextRequest) (string, UsageInfo, error) {
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return "", UsageInfo{}, ErrEmptyPrompt
	}

	messages := []api.Message{{Role: "system", Content: req.SystemPrompt}}
	if req.UserInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: req.UserInput})
	}

	options := map[string]interface{}{}
	if req.Params.Temperature != nil {
		options["temperature"] = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		options["top_p"] = *req.Params.TopP
	}
	if req.Params.MaxTokens != nil {
		options["num_predict"] = *req.Params.MaxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	started := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		err = classifyOllamaError(err)
		observeRequest(c.model, started, err)
		c.logger.Warn("Ollama chat failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		return "", UsageInfo{}, err
	}

	if resp.Message.Content == "" {
		err = fmt.Errorf("%w: empty reply", domain.ErrMalformedResponse)
		observeRequest(c.model, started, err)
		return "", UsageInfo{}, err
	}

	usage := UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	observeRequest(c.model, started, nil)
	observeUsage(c.model, usage)

	c.logger.Info("Ollama reply received",
		zap.Duration("duration", time.Since(started)),
		zap.Int("replyLength", len(resp.Message.Content)),
		zap.Int("totalTokens", usage.TotalTokens))
	return resp.Message.Content, usage, nil
}

func (c *ollamaClient) GenerateSpeech(context.Context, SpeechRequest) ([]byte, error) {
	return nil, domain.ErrSpeechUnsupported
}

func classifyOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return domain.ClassifyStatus(statusErr.StatusCode, statusErr.ErrorMessage)
	}
	return transportError(err)
}
