package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatProvider talks to any OpenAI-compatible chat completions API
// (Hugging Face router, OpenRouter).
type OpenAICompatProvider struct {
	Name        string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	TopP        float32

	client *openai.Client
}

type CompatOptions struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	// Extra headers sent on every request (OpenRouter attribution).
	Headers map[string]string
}

func NewOpenAICompatProvider(opts CompatOptions) *OpenAICompatProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	httpClient := &http.Client{Timeout: 90 * time.Second}
	if len(opts.Headers) > 0 {
		httpClient.Transport = &headerTransport{base: http.DefaultTransport, headers: opts.Headers}
	}
	cfg.HTTPClient = httpClient

	name := opts.Name
	if name == "" {
		name = "openai-compat"
	}
	return &OpenAICompatProvider{
		Name:        name,
		APIKey:      opts.APIKey,
		Model:       opts.Model,
		MaxTokens:   500,
		Temperature: 0.7,
		TopP:        0.9,
		client:      openai.NewClientWithConfig(cfg),
	}
}

func NewHuggingFaceProvider(baseURL, apiKey, model string) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1"
	}
	return NewOpenAICompatProvider(CompatOptions{Name: "huggingface", BaseURL: baseURL, APIKey: apiKey, Model: model})
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenAICompatProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	headers := map[string]string{}
	if siteURL != "" {
		headers["HTTP-Referer"] = siteURL
	}
	if appName != "" {
		headers["X-Title"] = appName
	}
	return NewOpenAICompatProvider(CompatOptions{
		Name: "openrouter", BaseURL: baseURL, APIKey: apiKey, Model: model, Headers: headers,
	})
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.client == nil {
		return "", errors.New(p.Name + ": client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New(p.Name + ": api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New(p.Name + ": model is required")
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", p.translateError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// translateError lifts go-openai HTTP failures into *StatusError so callers can
// classify by status code without importing the SDK.
func (p *OpenAICompatProvider) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Provider: p.Name, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		body := ""
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &StatusError{Provider: p.Name, StatusCode: reqErr.HTTPStatusCode, Body: body}
	}
	return err
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
