// Package gemini classifies face frames with the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/infra/inference"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-3-flash-preview"
)

// Client is a Gemini API client.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	counters   inference.Counters
}

// Config represents Gemini client configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
	TopK        int     `json:"topK"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// New creates a new Gemini client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

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
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Classify sends one frame and returns the dominant emotion.
// Rate limit failures are marked with inference.ErrQuotaExceeded.
func (c *Client) Classify(ctx context.Context, frame string) (emotion.Emotion, float64, error) {
	c.counters.Begin(time.Now())

	e, conf, err := c.classify(ctx, frame)
	c.counters.Done(err)
	return e, conf, err
}

func (c *Client) classify(ctx context.Context, frame string) (emotion.Emotion, float64, error) {
	text, err := c.generate(ctx, frame)
	if err != nil {
		return "", 0, err
	}
	zlog.Debug().Msgf("gemini answered: model=%s text=%q", c.model, text)
	return inference.ParseLabel(text)
}

func (c *Client) generate(ctx context.Context, frame string) (string, error) {
	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: inference.Prompt},
				{InlineData: &inlineData{MimeType: "image/jpeg", Data: frame}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature: inference.Temperature,
			TopP:        inference.TopP,
			TopK:        inference.TopK,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal request")
	}

	reqURL := c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, respBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse response")
	}

	if len(parsed.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func statusError(code int, body []byte) error {
	var apiErr errorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Status + ": " + apiErr.Error.Message
	}

	err := errors.Newf("gemini API returned status %d: %s", code, msg)
	if code == http.StatusTooManyRequests || inference.IsQuotaMessage(msg) {
		return errors.Mark(err, inference.ErrQuotaExceeded)
	}
	return err
}

// Metrics returns the request counters of the client.
func (c *Client) Metrics() inference.Metrics {
	return c.counters.Snapshot("gemini")
}
