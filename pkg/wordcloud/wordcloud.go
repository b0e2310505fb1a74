// Package wordcloud renders word clouds through the QuickChart word cloud API.
package wordcloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultURL is the public QuickChart endpoint.
const DefaultURL = "https://quickchart.io/wordcloud"

// ErrEmptyText is returned when there is nothing to draw.
var ErrEmptyText = errors.New("wordcloud: empty text")

// Config describes the provider.
type Config struct {
	URL      string
	MaxChars int
	Timeout  time.Duration
}

// Client builds and verifies word cloud URLs.
type Client struct {
	baseURL    string
	maxChars   int
	httpClient *http.Client
	logger     zerolog.Logger
}

// New constructs a client; a nil httpClient gets one bounded by cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger zerolog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 3000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	bounded := *httpClient
	bounded.Timeout = cfg.Timeout

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		maxChars:   cfg.MaxChars,
		httpClient: &bounded,
		logger:     logger.With().Str("component", "wordcloud").Logger(),
	}
}

// BuildURL returns the image URL for text truncated to the configured rune limit.
func (c *Client) BuildURL(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > c.maxChars {
		runes = runes[:c.maxChars]
	}

	params := url.Values{}
	params.Set("text", string(runes))
	params.Set("format", "png")
	params.Set("fontFamily", "Arial")
	params.Set("width", "1000")
	params.Set("height", "1000")
	params.Set("fontScale", "20")
	params.Set("scale", "linear")
	params.Set("background", "white")

	return fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
}

// Generate renders the cloud once so a dead provider is noticed now rather than by the
// reader of the report, and returns the image URL.
func (c *Client) Generate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	target := c.BuildURL(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("wordcloud: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wordcloud: request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wordcloud: unexpected status %d", resp.StatusCode)
	}

	c.logger.Debug().Int("chars", len([]rune(text))).Msg("word cloud rendered")

	return target, nil
}
