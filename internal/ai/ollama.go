package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3:latest"
)

// OllamaProvider calls a local Ollama daemon's /api/chat without streaming.
// The per-call deadline comes from ctx.
type OllamaProvider struct {
	BaseURL string
	Model   string
	// KeepAlive is forwarded as keep_alive (e.g. "5m"); empty uses the
	// daemon default.
	KeepAlive   string
	Temperature float32
	NumPredict  int
	Client      *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Model:       model,
		Temperature: 0.7,
		NumPredict:  500,
		Client:      &http.Client{},
	}
}

type ollamaChatReq struct {
	Model     string         `json:"model"`
	Messages  []ollamaMsg    `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", errors.New("ollama: http client is nil")
	}

	body := ollamaChatReq{
		Model:     p.Model,
		KeepAlive: p.KeepAlive,
		Messages:  make([]ollamaMsg, 0, len(messages)),
	}
	if p.Temperature > 0 || p.NumPredict > 0 {
		body.Options = &ollamaOptions{Temperature: p.Temperature, NumPredict: p.NumPredict}
	}
	for _, m := range messages {
		body.Messages = append(body.Messages, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: ollamaErrorBody(resp.Body)}
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", errors.New("ollama: " + decoded.Error)
	}
	content := strings.TrimSpace(decoded.Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// ollamaErrorBody extracts {"error": "..."} when present, else the raw text.
func ollamaErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4*1024))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(b))
}
