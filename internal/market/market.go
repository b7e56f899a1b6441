// Package market looks up agricultural mandi prices through Gemini.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/example/agri-inference/internal/prediction"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("gemini returned an empty response")

// Query selects one market. All four fields are required.
type Query struct {
	Commodity string
	State     string
	District  string
	Market    string
}

// Validate reports the first missing field.
func (q Query) Validate() error {
	fields := []struct{ name, value string }{
		{"commodity", q.Commodity},
		{"state", q.State},
		{"district", q.District},
		{"market", q.Market},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return prediction.NewValidationError(f.name, "is required (all 4 params required: commodity, state, district, market)")
		}
	}
	return nil
}

// Record is the price record the model is asked to return.
type Record struct {
	Commodity string  `json:"commodity"`
	State     string  `json:"state"`
	District  string  `json:"district"`
	Market    string  `json:"market"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	Source    string  `json:"source"`
}

// Client wraps a Gemini generative model configured for JSON output.
type Client struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	logger   *zap.Logger
	attempts int
}

// New dials Gemini with apiKey.
func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m := cl.GenerativeModel(strings.TrimSpace(model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	return &Client{client: cl, model: m, logger: logger.Named("market"), attempts: 3}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Lookup asks the model for the price record matching q.
func (c *Client) Lookup(ctx context.Context, q Query) (*Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.model.GenerateContent(ctx, genai.Text(buildPrompt(q)))
		if err != nil {
			lastErr = err
			c.logger.Warn("gemini request failed", zap.Error(err), zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return parseRecord(firstText(resp))
	}
	return nil, fmt.Errorf("gemini market lookup: %w", lastErr)
}

func buildPrompt(q Query) string {
	return fmt.Sprintf(`You are an assistant that returns agricultural market prices in JSON.
Fetch or estimate the mandi price for:
- Commodity: %s
- State: %s
- District: %s
- Market: %s

Respond strictly in JSON only, no explanations, no markdown:
{
  "commodity": "string",
  "state": "string",
  "district": "string",
  "market": "string",
  "price": number,
  "unit": "string",
  "source": "string"
}`, q.Commodity, q.State, q.District, q.Market)
}

func parseRecord(text string) (*Record, error) {
	text = stripCodeFences(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var r Record
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, fmt.Errorf("invalid response from gemini: %w", err)
	}
	return &r, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
