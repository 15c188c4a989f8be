package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storybook/internal/domain"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var _ AIClient = (*openAIClient)(nil)

// openAIClient реализует AIClient с использованием go-openai.
// Клиент библиотеки собирается на каждый вызов: ключ может смениться между запросами.
type openAIClient struct {
	baseURL     string
	model       string
	ttsModel    string
	httpClient  *http.Client
	creds       CredentialSource
	countTokens TokenCounter
	logger      *zap.Logger
}

func newOpenAIClient(baseURL, model, ttsModel string, httpClient *http.Client, creds CredentialSource, counter TokenCounter, logger *zap.Logger) *openAIClient {
	return &openAIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       model,
		ttsModel:    ttsModel,
		httpClient:  httpClient,
		creds:       creds,
		countTokens: counter,
		logger:      logger,
	}
}

func (c *openAIClient) client() (*openaigo.Client, error) {
	key, ok := c.creds.Credential()
	if !ok {
		return nil, domain.ErrMissingCredential
	}
	conf := openaigo.DefaultConfig(key)
	conf.BaseURL = c.baseURL
	conf.HTTPClient = c.httpClient
	return openaigo.NewClientWithConfig(conf), nil
}

// GenerateText отправляет chat completion и возвращает текст первого варианта.
func (c *openAIClient) GenerateText(ctx context.Context, req TextRequest) (string, UsageInfo, error) {
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return "", UsageInfo{}, ErrEmptyPrompt
	}
	started := time.Now()

	client, err := c.client()
	if err != nil {
		observeRequest(c.model, started, err)
		return "", UsageInfo{}, err
	}

	messages := []openaigo.ChatCompletionMessage{
		{Role: openaigo.ChatMessageRoleSystem, Content: req.SystemPrompt},
	}
	if req.UserInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleUser,
			Content: req.UserInput,
		})
	}

	c.logger.Debug("Sending chat completion",
		zap.String("model", c.model),
		zap.Int("systemPromptBytes", len(req.SystemPrompt)),
		zap.Int("userInputBytes", len(req.UserInput)))

	resp, err := client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32Val(req.Params.Temperature),
		MaxTokens:   intVal(req.Params.MaxTokens),
		TopP:        float32Val(req.Params.TopP),
	})
	if err != nil {
		err = classifyOpenAIError(err)
		observeRequest(c.model, started, err)
		c.logger.Warn("Chat completion failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		return "", UsageInfo{}, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		err = fmt.Errorf("%w: empty reply", domain.ErrMalformedResponse)
		observeRequest(c.model, started, err)
		return "", UsageInfo{}, err
	}
	text := resp.Choices[0].Message.Content

	usage := UsageInfo{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if usage.TotalTokens == 0 {
		if estimated, ok := estimateUsage(c.countTokens, c.model, req, text); ok {
			usage = estimated
		}
	}
	observeRequest(c.model, started, nil)
	observeUsage(c.model, usage)

	c.logger.Info("Chat completion received",
		zap.Duration("duration", time.Since(started)),
		zap.Int("replyLength", len(text)),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Bool("estimated", usage.Estimated))
	return text, usage, nil
}

// GenerateSpeech синтезирует речь и возвращает mp3 без изменений.
func (c *openAIClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	started := time.Now()
	client, err := c.client()
	if err != nil {
		observeRequest(c.ttsModel, started, err)
		return nil, err
	}

	resp, err := client.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(c.ttsModel),
		Input:          req.Text,
		Voice:          openaigo.SpeechVoice(req.Voice.Value),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	if err != nil {
		err = classifyOpenAIError(err)
		observeRequest(c.ttsModel, started, err)
		c.logger.Warn("Speech synthesis failed", zap.String("voice", req.Voice.Value), zap.Error(err))
		return nil, err
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		err = transportError(err)
		observeRequest(c.ttsModel, started, err)
		return nil, err
	}
	observeRequest(c.ttsModel, started, nil)
	aiSpeechBytes.WithLabelValues(c.ttsModel).Observe(float64(len(audio)))

	c.logger.Debug("Speech synthesized",
		zap.String("voice", req.Voice.Value),
		zap.Int("bytes", len(audio)),
		zap.Duration("duration", time.Since(started)))
	return audio, nil
}

// classifyOpenAIError переводит ошибки go-openai в ошибки домена.
func classifyOpenAIError(err error) error {
	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		return domain.ClassifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return domain.ClassifyStatus(reqErr.HTTPStatusCode, "")
	}
	return transportError(err)
}
