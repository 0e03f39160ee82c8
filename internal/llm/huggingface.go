package llm

import (
	"context"
	"net/http"
	"strings"
)

const huggingFaceBaseURL = "https://api-inference.huggingface.co"

// Markers used to lay out the conversation for plain text-generation models.
const (
	userMarker      = "Utilisateur:"
	assistantMarker = "Assistant:"
)

// HuggingFace calls the text-generation inference API with a flattened prompt.
type HuggingFace struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewHuggingFace(apiKey, baseURL, model string) *HuggingFace {
	if baseURL == "" {
		baseURL = huggingFaceBaseURL
	}
	if model == "" {
		model = "mistralai/Mistral-7B-Instruct-v0.2"
	}
	return &HuggingFace{apiKey: strings.TrimSpace(apiKey), baseURL: strings.TrimRight(baseURL, "/"), model: model, client: newHTTPClient()}
}

func (h *HuggingFace) Name() string         { return "huggingface" }
func (h *HuggingFace) Configured() bool     { return h.apiKey != "" }
func (h *HuggingFace) DefaultModel() string { return h.model }
func (h *HuggingFace) Prefixes() []string   { return []string{"mistralai/", "hf/", "meta-llama/", "HuggingFaceH4/"} }

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfResponse []struct {
	GeneratedText string `json:"generated_text"`
}

func (h *HuggingFace) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if !h.Configured() {
		return "", ErrNotConfigured
	}
	model := strings.TrimPrefix(req.Model, "hf/")
	if model == "" {
		model = h.model
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = 0.01
	}

	var out hfResponse
	err := postJSON(ctx, h.client, "huggingface", h.baseURL+"/models/"+model,
		map[string]string{"Authorization": "Bearer " + h.apiKey},
		hfRequest{
			Inputs:     formatConversation(req.System, req.Messages),
			Parameters: hfParameters{MaxNewTokens: req.MaxTokens, Temperature: temp, ReturnFullText: false},
		},
		&out)
	if err != nil {
		return "", err
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return "", ErrEmptyResponse
	}
	return out[0].GeneratedText, nil
}

func formatConversation(system string, msgs []Message) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	for _, m := range msgs {
		if m.Role == RoleUser {
			b.WriteString(userMarker)
		} else {
			b.WriteString(assistantMarker)
		}
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n")
	}
	b.WriteString(assistantMarker)
	return b.String()
}
