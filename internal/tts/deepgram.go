package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const deepgramSpeakURL = "https://api.deepgram.com/v1/speak"

// Deepgram renders text with the Aura REST speak endpoint.
type Deepgram struct {
	apiKey       string
	defaultVoice string
	url          string
	client       *http.Client
}

func NewDeepgram(apiKey, defaultVoice string) *Deepgram {
	if defaultVoice == "" {
		defaultVoice = "aura-2-agathe-fr"
	}
	return &Deepgram{
		apiKey:       strings.TrimSpace(apiKey),
		defaultVoice: defaultVoice,
		url:          deepgramSpeakURL,
		client:       &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (d *Deepgram) WithURL(u string) *Deepgram {
	if u != "" {
		d.url = u
	}
	return d
}

func (d *Deepgram) Name() string    { return "deepgram" }
func (d *Deepgram) Available() bool { return d.apiKey != "" }

func (d *Deepgram) Synthesize(ctx context.Context, text string, v Voice) ([]byte, error) {
	if !d.Available() {
		return nil, ErrUnavailable
	}
	model := v.VoiceID
	if !strings.HasPrefix(model, "aura") {
		model = d.defaultVoice
	}

	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("tts: deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	switch strings.ToLower(v.Format) {
	case "ulaw", "mulaw":
		q.Set("encoding", "mulaw")
		q.Set("sample_rate", "8000")
		q.Set("container", "wav")
	case "wav":
		q.Set("encoding", "linear16")
		q.Set("container", "wav")
	default:
		q.Set("encoding", "mp3")
	}
	u.RawQuery = q.Encode()

	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: deepgram speak: %w", err)
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("tts: deepgram read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts: deepgram speak: status %d: %s", resp.StatusCode, strings.TrimSpace(string(audio)))
	}
	return audio, nil
}
