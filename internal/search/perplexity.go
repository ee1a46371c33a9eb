// Package search wraps the Perplexity chat-completions API for web search.
package search

import (
	"context"
	"encoding/json"
	stderrs "errors"
	"net/http"
	"time"

	"companion-agent/internal/common/errors"
	"companion-agent/internal/common/httpx"
	"companion-agent/internal/common/logger"
)

const serviceName = "perplexity"

// Result carries both the raw completion payload (forwarded to app devices
// over RPC) and the extracted answer text.
type Result struct {
	Raw     json.RawMessage
	Content string
}

// Client calls the Perplexity API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	log        logger.Logger
}

// NewClient builds a search client. The timeout bounds the whole search
// call; the voice session reads an interstitial to the user meanwhile.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, log logger.Logger) *Client {
	if model == "" {
		model = "sonar"
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: httpx.NewClient(timeout),
		log:        log,
	}
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Ask runs a web search with the configured model and returns the raw
// payload plus the first choice's content.
func (c *Client) Ask(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	body := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"content": query, "role": "user"},
		},
	}

	var raw json.RawMessage
	err := httpx.DoJSON(ctx, c.httpClient, httpx.Request{
		Method:  http.MethodPost,
		URL:     c.baseURL + "/chat/completions",
		Body:    body,
		Headers: map[string]string{"Authorization": "Bearer " + c.apiKey},
		Service: serviceName,
	}, &raw)
	if err != nil {
		if stderrs.Is(err, context.DeadlineExceeded) {
			return nil, errors.NewWebSearchTimeoutError()
		}
		return nil, errors.NewWebSearchFailedError(err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.NewWebSearchFailedError(err)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	c.log.Debug("Web search completed", map[string]interface{}{
		"duration": time.Since(start).String(),
	})
	return &Result{Raw: raw, Content: content}, nil
}
