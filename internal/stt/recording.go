package stt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxRecordingBytes = 25 << 20

// RecordingFetcher downloads call recordings with account basic auth.
type RecordingFetcher struct {
	accountSID string
	authToken  string
	client     *http.Client
}

func NewRecordingFetcher(accountSID, authToken string) *RecordingFetcher {
	return &RecordingFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		client:     &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Fetch returns the recording body and its audio format.
func (f *RecordingFetcher) Fetch(ctx context.Context, recordingURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("stt: recording request: %w", err)
	}
	if f.accountSID != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("stt: fetch recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("stt: fetch recording: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes))
	if err != nil {
		return nil, "", fmt.Errorf("stt: read recording: %w", err)
	}
	return data, formatOf(resp.Header.Get("Content-Type"), recordingURL), nil
}

func formatOf(contentType, u string) string {
	switch {
	case strings.Contains(contentType, "mpeg"), strings.HasSuffix(u, ".mp3"):
		return "mp3"
	case strings.Contains(contentType, "basic"), strings.Contains(contentType, "mulaw"):
		return "ulaw"
	default:
		return "wav"
	}
}
