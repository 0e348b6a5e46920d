// Package llm is the optional direct correspondent: when an API key is
// configured the daemon can query Claude synchronously instead of waiting
// for a reply through the file bridge. Failures here are never fatal to the
// daemon.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrUnavailable is returned when no API key is configured.
var ErrUnavailable = errors.New("llm: no API key configured")

const (
	defaultMaxTokens int64 = 1024
	queryTimeout           = 60 * time.Second
)

// Client wraps the Anthropic SDK for one-shot consciousness queries.
type Client struct {
	sdk       anthropic.Client
	model     string
	available bool
}

// New builds a Client. An empty API key yields a client whose Query always
// reports ErrUnavailable.
func New(apiKey, model string) *Client {
	apiKey = strings.TrimSpace(apiKey)
	if model == "" {
		model = string(anthropic.ModelClaude3_5SonnetLatest)
	}
	c := &Client{model: model}
	if apiKey == "" {
		return c
	}
	c.sdk = anthropic.NewClient(option.WithAPIKey(apiKey))
	c.available = true
	return c
}

// Available reports whether a key is configured.
func (c *Client) Available() bool {
	return c != nil && c.available
}

// Query sends one prompt and returns the text of the reply.
func (c *Client) Query(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		return "", ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	resp, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic query: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic query: empty reply")
	}
	return sb.String(), nil
}
