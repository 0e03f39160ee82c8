package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Provider is one language-model backend.
type Provider interface {
	Name() string
	// Configured is false when credentials are missing; the router skips such providers.
	Configured() bool
	// DefaultModel is used when the requested model belongs to another provider.
	DefaultModel() string
	// Prefixes lists the model-id prefixes this provider serves.
	Prefixes() []string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

var (
	ErrNotConfigured = errors.New("llm: provider not configured")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// ProviderError is a non-2xx answer from a provider API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// postJSON sends body and decodes a 2xx JSON answer into out.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out any) error {
	ctx, span := tracer.Start(ctx, "llm "+provider, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", provider), attribute.String("request.url", url))

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("llm: %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("llm: read %s response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		span.RecordError(perr)
		span.SetStatus(codes.Error, perr.Error())
		return perr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("llm: decode %s response: %w", provider, err)
	}
	return nil
}
