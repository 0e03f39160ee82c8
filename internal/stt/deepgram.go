package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
)

const (
	deepgramListenURL = "wss://api.deepgram.com/v1/listen"
	chunkSize         = 8 * 1024
)

// Deepgram streams a recorded utterance to the live listen endpoint and
// collects the final transcripts until the server closes the stream.
type Deepgram struct {
	apiKey   string
	model    string
	language string
	url      string
}

func NewDeepgram(apiKey, model, language string) *Deepgram {
	if model == "" {
		model = "nova-2"
	}
	return &Deepgram{apiKey: strings.TrimSpace(apiKey), model: model, language: language, url: deepgramListenURL}
}

// WithURL overrides the listen endpoint.
func (d *Deepgram) WithURL(u string) *Deepgram {
	if u != "" {
		d.url = u
	}
	return d
}

func (d *Deepgram) Name() string    { return "deepgram" }
func (d *Deepgram) Available() bool { return d.apiKey != "" }

func (d *Deepgram) Transcribe(ctx context.Context, a Audio) (Result, error) {
	if !d.Available() {
		return Result{}, ErrUnavailable
	}
	ctx, span := tracer.Start(ctx, "stt deepgram")
	defer span.End()

	conn, err := d.dial(ctx, a.Format)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}

	for off := 0; off < len(a.Data); off += chunkSize {
		end := min(off+chunkSize, len(a.Data))
		if err := conn.WriteMessage(websocket.BinaryMessage, a.Data[off:end]); err != nil {
			return Result{}, fmt.Errorf("stt: deepgram write: %w", err)
		}
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return Result{}, fmt.Errorf("stt: deepgram close stream: %w", err)
	}

	var (
		parts      []string
		confidence float64
	)
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			var ce *websocket.CloseError
			if !errors.As(err, &ce) && !strings.Contains(err.Error(), "EOF") && len(parts) == 0 {
				return Result{}, fmt.Errorf("stt: deepgram read: %w", err)
			}
			break
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			continue
		}
		if api.TypeResponse(head.Type) != api.TypeMessageResponse {
			continue
		}
		var resp api.MessageResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if !resp.IsFinal || len(resp.Channel.Alternatives) == 0 {
			continue
		}
		if t := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript); t != "" {
			parts = append(parts, t)
			confidence = resp.Channel.Alternatives[0].Confidence
		}
	}

	text := strings.Join(parts, " ")
	if text == "" {
		return Result{}, ErrNoSpeech
	}
	return Result{Text: text, Language: d.language, Confidence: confidence, Source: d.Name()}, nil
}

func (d *Deepgram) dial(ctx context.Context, format string) (*websocket.Conn, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("stt: deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	if d.language != "" {
		q.Set("language", d.language)
	}
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if f := audioExt(format); f == "ulaw" || f == "mulaw" {
		q.Set("encoding", "mulaw")
		q.Set("sample_rate", "8000")
		q.Set("channels", "1")
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second, Proxy: http.ProxyFromEnvironment}
	conn, _, err := dialer.DialContext(ctx, u.String(), http.Header{"Authorization": {"Token " + d.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("stt: deepgram dial: %w", err)
	}
	return conn, nil
}
