package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/JexSrs/go-ollama"
	"github.com/sirupsen/logrus"

	"veilleboard/config"
)

var (
	ErrEmptyResponse = errors.New("ollama: empty response")
	ErrNotDone       = errors.New("ollama: response not done")
)

// OllamaClient talks to an Ollama server through the Generate API.
type OllamaClient struct {
	client       *ollama.Ollama
	model        string
	maxPromptLen int
}

// NewOllamaClient builds a client for the configured host and model.
func NewOllamaClient(cfg config.OllamaConfig) (*OllamaClient, error) {
	ollamaURL, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL %q: %w", cfg.Host, err)
	}
	if ollamaURL.Scheme == "" || ollamaURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host required", cfg.Host)
	}

	client := ollama.New(*ollamaURL)

	logrus.Infof("Using Ollama client for host: %s", cfg.Host)
	logrus.Infof("Using Ollama model: %s", cfg.Model)

	return &OllamaClient{
		client:       client,
		model:        cfg.Model,
		maxPromptLen: cfg.MaxPromptLength,
	}, nil
}

// Model returns the model name sent with each request.
func (oc *OllamaClient) Model() string { return oc.model }

// Request sends one prompt with the Generate API and returns the cleaned answer.
func (oc *OllamaClient) Request(systemMessage, userPrompt string) (string, error) {
	logrus.Debugf("Sending prompt of %d characters to Ollama (max: %d)", len(userPrompt), oc.maxPromptLen)
	if truncated := Truncate(userPrompt, oc.maxPromptLen); len(truncated) < len(userPrompt) {
		logrus.Warnf("Prompt is being truncated from %d to %d characters.", len(userPrompt), len(truncated))
		userPrompt = truncated
	}

	res, err := oc.client.Generate(
		oc.client.Generate.WithModel(oc.model),
		oc.client.Generate.WithSystem(systemMessage),
		oc.client.Generate.WithPrompt(userPrompt),
	)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if !res.Done {
		return "", ErrNotDone
	}
	answer := TrimFences(res.Response)
	if answer == "" {
		return "", ErrEmptyResponse
	}
	logrus.Debug("Response received from Ollama.")
	return answer, nil
}

// Truncate cuts s to at most max bytes without splitting a character.
// max <= 0 leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	// Back off over the bytes of a rune split by the cut, never further.
	for cut > 0 && cut > max-utf8.UTFMax && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// TrimFences removes the markdown code fences models sometimes wrap answers in.
func TrimFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop a language tag on the opening fence.
		if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], " \t") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
