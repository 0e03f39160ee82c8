package llm

import (
	"context"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

type Anthropic struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{apiKey: strings.TrimSpace(apiKey), baseURL: anthropicBaseURL, model: model, client: newHTTPClient()}
}

func (a *Anthropic) WithBaseURL(u string) *Anthropic {
	if u != "" {
		a.baseURL = strings.TrimRight(u, "/")
	}
	return a
}

func (a *Anthropic) Name() string         { return "anthropic" }
func (a *Anthropic) Configured() bool     { return a.apiKey != "" }
func (a *Anthropic) DefaultModel() string { return a.model }
func (a *Anthropic) Prefixes() []string   { return []string{"claude"} }

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !a.Configured() {
		return "", ErrNotConfigured
	}
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	var out anthropicResponse
	err := postJSON(ctx, a.client, "anthropic", a.baseURL+"/messages",
		map[string]string{"x-api-key": a.apiKey, "anthropic-version": anthropicVersion},
		anthropicRequest{
			Model:       model,
			System:      req.System,
			Messages:    alternating(req.Messages),
			MaxTokens:   maxTokens,
			Temperature: req.Temperature,
		},
		&out)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// alternating drops leading assistant turns and merges consecutive turns of the
// same role; the messages API requires user-first, alternating roles.
func alternating(in []Message) []chatMessage {
	out := make([]chatMessage, 0, len(in))
	for _, m := range in {
		if len(out) == 0 && m.Role != RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == string(m.Role) {
			out[n-1].Content += "\n" + m.Content
			continue
		}
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
