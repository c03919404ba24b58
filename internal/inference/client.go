// Package inference calls a hosted text-generation endpoint.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Parameters are the fixed generation settings sent with every prompt.
type Parameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
}

// DefaultParameters keep answers short and factual.
var DefaultParameters = Parameters{
	MaxNewTokens:      300,
	Temperature:       0.3,
	RepetitionPenalty: 1.2,
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters Parameters `json:"parameters"`
}

type completion struct {
	GeneratedText string `json:"generated_text"`
}

// StatusError is returned when the endpoint answers with anything but 200.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference endpoint returned %d: %s", e.Code, e.Body)
}

// ErrNoCompletion is returned for a 200 response carrying no completions.
var ErrNoCompletion = errors.New("inference endpoint returned no completions")

// Client posts prompts to a single endpoint.
type Client struct {
	http   *resty.Client
	url    string
	params Parameters
	logger *slog.Logger
}

// NewClient creates a Client. A zero timeout leaves requests unbounded.
func NewClient(logger *slog.Logger, url, apiKey string, params Parameters, timeout time.Duration) *Client {
	hc := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		hc.SetAuthToken(apiKey)
	}
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{http: hc, url: url, params: params, logger: logger}
}

// Generate sends prompt as a single-turn input and returns the first completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("Sending prompt to inference endpoint", "url", c.url, "length", len(prompt))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{Inputs: prompt, Parameters: c.params}).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("Inference endpoint returned an error", "status", resp.StatusCode())
		return "", &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}

	var out []completion
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to decode inference response: %w", err)
	}
	if len(out) == 0 {
		return "", ErrNoCompletion
	}
	return out[0].GeneratedText, nil
}
