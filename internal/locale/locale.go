// Package locale turns an English digest into spoken audio in the
// configured target language: translation first, then text-to-speech.
package locale

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// digestMaxRunes bounds the text sent to translation; TTS endpoints
// reject long inputs.
const digestMaxRunes = 1000

// Speaker translates text and synthesizes speech via two HTTP
// endpoints: a LibreTranslate-style translator and a GET-based TTS
// service returning raw audio bytes.
type Speaker struct {
	translateURL string
	ttsURL       string
	target       string
	client       *http.Client
}

// NewSpeaker creates a speaker producing audio in target language
// (BCP-47 code, e.g. "hi").
func NewSpeaker(translateURL, ttsURL, target string, timeout time.Duration) *Speaker {
	return &Speaker{
		translateURL: translateURL,
		ttsURL:       ttsURL,
		target:       target,
		client:       &http.Client{Timeout: timeout},
	}
}

// Speak translates text into the target language and returns the
// synthesized audio bytes.
func (s *Speaker) Speak(ctx context.Context, text string) ([]byte, error) {
	text = truncateRunes(text, digestMaxRunes)

	translated, err := s.translate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	audio, err := s.synthesize(ctx, translated)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

func (s *Speaker) translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"q":      text,
		"source": "en",
		"target": s.target,
		"format": "text",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.translateURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.TranslatedText == "" {
		return "", fmt.Errorf("empty translation")
	}
	return out.TranslatedText, nil
}

func (s *Speaker) synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("tl", s.target)
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ttsURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	return audio, nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
