package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

// ElevenLabs synthesizes over the stream-input websocket and buffers the
// whole utterance.
type ElevenLabs struct {
	apiKey       string
	model        string
	defaultVoice string
	wsBase       string
}

func NewElevenLabs(apiKey, model, defaultVoice string) *ElevenLabs {
	if model == "" {
		model = "eleven_multilingual_v2"
	}
	return &ElevenLabs{apiKey: strings.TrimSpace(apiKey), model: model, defaultVoice: defaultVoice, wsBase: elevenLabsWSBase}
}

func (e *ElevenLabs) WithWSBaseURL(base string) *ElevenLabs {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBase = base
	}
	return e
}

func (e *ElevenLabs) Name() string    { return "elevenlabs" }
func (e *ElevenLabs) Available() bool { return e.apiKey != "" }

type elevenLabsMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string, v Voice) ([]byte, error) {
	if !e.Available() {
		return nil, ErrUnavailable
	}
	voiceID := strings.TrimSpace(v.VoiceID)
	if voiceID == "" {
		voiceID = e.defaultVoice
	}
	if voiceID == "" {
		return nil, fmt.Errorf("tts: elevenlabs voice id is required")
	}
	ctx, span := tracer.Start(ctx, "tts elevenlabs")
	defer span.End()

	wsURL, err := e.streamURL(voiceID, v.Format)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	settings := map[string]any{"stability": 0.5, "similarity_boost": 0.8}
	if v.Speed > 0 {
		settings["speed"] = v.Speed
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]any{"text": " ", "voice_settings": settings}); err != nil {
		return nil, fmt.Errorf("tts: elevenlabs init: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{"text": strings.TrimSpace(text) + " ", "flush": true}); err != nil {
		return nil, fmt.Errorf("tts: elevenlabs send: %w", err)
	}
	if err := conn.WriteJSON(map[string]any{"text": ""}); err != nil {
		return nil, fmt.Errorf("tts: elevenlabs close input: %w", err)
	}

	var out []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(out) > 0 {
				return out, nil
			}
			return nil, fmt.Errorf("tts: elevenlabs read: %w", err)
		}
		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("tts: elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err == nil {
				out = append(out, chunk...)
			}
		}
		if msg.IsFinal {
			return out, nil
		}
	}
}

func (e *ElevenLabs) streamURL(voiceID, format string) (string, error) {
	u, err := url.Parse(strings.ReplaceAll(e.wsBase, "{voice_id}", url.PathEscape(voiceID)))
	if err != nil {
		return "", fmt.Errorf("tts: elevenlabs url: %w", err)
	}
	q := u.Query()
	q.Set("model_id", e.model)
	q.Set("output_format", elevenLabsFormat(format))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func elevenLabsFormat(format string) string {
	switch strings.ToLower(format) {
	case "ulaw", "mulaw":
		return "ulaw_8000"
	case "wav", "pcm":
		return "pcm_" + strconv.Itoa(16000)
	default:
		return "mp3_44100_128"
	}
}
