package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Transcriber converts audio to text through an OpenAI-compatible
// /audio/transcriptions endpoint (OpenAI, Groq whisper).
type Transcriber struct {
	name    string
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
}

// NewTranscriber builds a speech-to-text client. Model defaults per
// provider: whisper-large-v3 on Groq, whisper-1 elsewhere.
func NewTranscriber(name, apiKey, apiBase, model string) *Transcriber {
	if apiBase == "" {
		if name == "groq" {
			apiBase = "https://api.groq.com/openai/v1"
		} else {
			apiBase = "https://api.openai.com/v1"
		}
	}
	if model == "" {
		if name == "groq" {
			model = "whisper-large-v3"
		} else {
			model = "whisper-1"
		}
	}
	return &Transcriber{
		name:    name,
		apiKey:  apiKey,
		apiBase: strings.TrimRight(apiBase, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *Transcriber) Name() string { return t.name }

// Transcribe uploads the audio and returns the recognised text.
func (t *Transcriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("%s: build upload: %w", t.name, err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("%s: build upload: %w", t.name, err)
	}
	if err := w.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("%s: build upload: %w", t.name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s: build upload: %w", t.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: transcription request: %w", t.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%s: decode transcription: %w", t.name, err)
	}
	return strings.TrimSpace(out.Text), nil
}

// Speaker synthesises speech through an OpenAI-compatible /audio/speech
// endpoint. Voice replies fall back to text when synthesis fails.
type Speaker struct {
	apiKey  string
	apiBase string
	model   string
	voice   string
	client  *http.Client
}

func NewSpeaker(apiKey, apiBase, model, voice string) *Speaker {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	if voice == "" {
		voice = "alloy"
	}
	return &Speaker{
		apiKey:  apiKey,
		apiBase: strings.TrimRight(apiBase, "/"),
		model:   model,
		voice:   voice,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Speak returns the synthesised audio bytes (opus, suitable for voice notes).
func (s *Speaker) Speak(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"model":           s.model,
		"voice":           s.voice,
		"input":           text,
		"response_format": "opus",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}
	return io.ReadAll(resp.Body)
}
