package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

// ChatCompletions talks to OpenAI-compatible /chat/completions endpoints.
// It serves both OpenAI and Groq.
type ChatCompletions struct {
	name     string
	apiKey   string
	baseURL  string
	model    string
	prefixes []string
	client   *http.Client
}

func NewOpenAI(apiKey, baseURL, model string) *ChatCompletions {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ChatCompletions{
		name:     "openai",
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		prefixes: []string{"gpt-", "o1", "o3", "o4"},
		client:   newHTTPClient(),
	}
}

func NewGroq(apiKey, model string) *ChatCompletions {
	if model == "" {
		model = "llama-3.1-8b-instant"
	}
	return &ChatCompletions{
		name:     "groq",
		apiKey:   strings.TrimSpace(apiKey),
		baseURL:  groqBaseURL,
		model:    model,
		prefixes: []string{"llama", "mixtral", "gemma"},
		client:   newHTTPClient(),
	}
}

// WithBaseURL points the client at another endpoint (proxies, tests).
func (c *ChatCompletions) WithBaseURL(u string) *ChatCompletions {
	if u != "" {
		c.baseURL = strings.TrimRight(u, "/")
	}
	return c
}

func (c *ChatCompletions) Name() string         { return c.name }
func (c *ChatCompletions) Configured() bool     { return c.apiKey != "" }
func (c *ChatCompletions) DefaultModel() string { return c.model }
func (c *ChatCompletions) Prefixes() []string   { return c.prefixes }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatCompletions) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	var out chatResponse
	err := postJSON(ctx, c.client, c.name, c.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		chatRequest{Model: model, Messages: msgs, Temperature: req.Temperature, MaxTokens: req.MaxTokens},
		&out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}
