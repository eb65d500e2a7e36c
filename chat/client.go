// Package chat talks to a generateContent style generative model endpoint
// and keeps the conversation of each session.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/giygas/drug-portal-api/logging"
)

// Compile-time check to ensure Client implements ChatClient
var _ interfaces.ChatClient = (*Client)(nil)

const (
	apiKeyHeader    = "x-goog-api-key"
	maxResponseSize = 4 << 20
)

var (
	// ErrRemote is returned when the model endpoint answers with an error object
	ErrRemote = errors.New("chat service error")
	// ErrEmptyResponse is returned when no candidate text comes back
	ErrEmptyResponse = errors.New("chat service returned no candidates")
	// ErrMissingKey is returned when no API key is configured for the session
	ErrMissingKey = errors.New("missing API key")
)

// GenerationConfig mirrors the sampling parameters of the request
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// DefaultGenerationConfig returns the portal's sampling parameters
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 8192}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the generateContent endpoint
type Client struct {
	httpClient *http.Client
	url        string
	config     GenerationConfig
}

// NewClient creates a client for url
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
		config:     DefaultGenerationConfig(),
	}
}

// Generate sends the conversation and returns the first candidate's text
func (c *Client) Generate(ctx context.Context, apiKey string, turns []interfaces.ChatTurn) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingKey
	}

	body := generateRequest{
		Contents:         make([]content, 0, len(turns)),
		GenerationConfig: c.config,
	}
	for _, turn := range turns {
		body.Contents = append(body.Contents, content{
			Role:  turn.Role,
			Parts: []part{{Text: turn.Text}},
		})
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		if err = response.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	var decoded generateResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		if response.StatusCode >= 300 {
			return "", fmt.Errorf("%w: status %d", ErrRemote, response.StatusCode)
		}
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}

	if decoded.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrRemote, decoded.Error.Message)
	}
	if response.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrRemote, response.StatusCode)
	}

	for _, candidate := range decoded.Candidates {
		var text strings.Builder
		for _, p := range candidate.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			return text.String(), nil
		}
	}
	return "", ErrEmptyResponse
}

// RemoteMessage extracts the remote error text from an ErrRemote error
func RemoteMessage(err error) string {
	if !errors.Is(err, ErrRemote) {
		return ""
	}
	return strings.TrimPrefix(err.Error(), ErrRemote.Error()+": ")
}
