// Package ollama classifies face frames with a local multimodal Ollama model.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llava"
)

// Client is an Ollama chat API client.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	counters   inference.Counters
}

// Config represents Ollama client configuration.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Error   string      `json:"error,omitempty"`
}

// New creates a new Ollama client.
func New(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify sends one frame and returns the dominant emotion.
func (c *Client) Classify(ctx context.Context, frame string) (emotion.Emotion, float64, error) {
	c.counters.Begin(time.Now())

	e, conf, err := c.classify(ctx, frame)
	c.counters.Done(err)
	return e, conf, err
}

func (c *Client) classify(ctx context.Context, frame string) (emotion.Emotion, float64, error) {
	payload := chatRequest{
		Model:  c.model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "user", Content: inference.Prompt, Images: []string{frame}},
		},
		Options: chatOptions{
			Temperature: inference.Temperature,
			TopP:        inference.TopP,
			TopK:        inference.TopK,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", 0, errors.Wrap(err, "ollama: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", 0, errors.Wrap(err, "ollama: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "ollama: request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, errors.Wrap(err, "ollama: read response")
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := errors.Newf("ollama: unexpected status %d: %s", resp.StatusCode, parsed.Error)
		if resp.StatusCode == http.StatusTooManyRequests || inference.IsQuotaMessage(parsed.Error) {
			return "", 0, errors.Mark(err, inference.ErrQuotaExceeded)
		}
		return "", 0, err
	}
	if decodeErr != nil {
		return "", 0, errors.Wrap(decodeErr, "ollama: decode response")
	}
	if parsed.Error != "" {
		return "", 0, errors.Newf("ollama: %s", parsed.Error)
	}

	zlog.Debug().Msgf("ollama answered: model=%s text=%q", c.model, parsed.Message.Content)
	return inference.ParseLabel(parsed.Message.Content)
}

// Metrics returns the request counters of the client.
func (c *Client) Metrics() inference.Metrics {
	return c.counters.Snapshot("ollama")
}
