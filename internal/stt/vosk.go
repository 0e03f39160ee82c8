package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Vosk runs an offline recognizer through a python helper script.
// The script receives the model dir and an audio file and prints
// {"text": "...", "language": "..."} on stdout.
type Vosk struct {
	ModelDir  string
	Script    string
	PythonBin string
	Language  string
}

func (v *Vosk) Name() string { return "vosk" }

func (v *Vosk) Available() bool {
	if v.ModelDir == "" || v.Script == "" {
		return false
	}
	fi, err := os.Stat(v.ModelDir)
	if err != nil || !fi.IsDir() {
		return false
	}
	_, err = os.Stat(v.Script)
	return err == nil
}

type voskOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (v *Vosk) Transcribe(ctx context.Context, a Audio) (Result, error) {
	if !v.Available() {
		return Result{}, ErrUnavailable
	}
	ctx, span := tracer.Start(ctx, "stt vosk")
	defer span.End()

	tmp, err := os.CreateTemp("", "utterance-*."+audioExt(a.Format))
	if err != nil {
		return Result{}, fmt.Errorf("stt: vosk temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(a.Data); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("stt: vosk write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("stt: vosk close audio: %w", err)
	}

	python := v.PythonBin
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, v.Script, "--model", v.ModelDir, "--lang", v.Language, tmp.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("stt: vosk: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out voskOutput
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return Result{}, fmt.Errorf("stt: vosk output: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return Result{}, ErrNoSpeech
	}
	return Result{Text: text, Language: out.Language, Source: v.Name()}, nil
}

func audioExt(format string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if f == "" {
		return "wav"
	}
	return f
}
