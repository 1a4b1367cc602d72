package llm

import (
	"bufio"
	"bytes"
	"chat-gateway/internal/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Ensure Client implements the Chatter interface
var _ Chatter = (*Client)(nil)

// Client calls the upstream chat-completion providers resolved by the
// registry. All three upstreams speak an OpenAI-compatible wire shape and
// differ only in endpoint, credential header and feature fields. Calls use an
// aggressive timeout with retries disabled; callers retry at a higher layer
// if they want to.
type Client struct {
	registry   *Registry
	httpClient *http.Client
}

// NewClient creates a provider client with the given request timeout
func NewClient(registry *Registry, timeout time.Duration) *Client {
	return &Client{
		registry:   registry,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type webSearchOptions struct {
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type chatRequestBody struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Stream           bool              `json:"stream"`
	WebSearchOptions *webSearchOptions `json:"web_search_options,omitempty"`
	WikiGrounding    *bool             `json:"wiki_grounding,omitempty"`
}

type chatResponseBody struct {
	ID      string `json:"id"`
	Choices []struct {
		Message Message `json:"message"`
		Delta   Message `json:"delta"`
	} `json:"choices"`
	Usage *ResponseUsage `json:"usage,omitempty"`
}

func (c *Client) buildRequest(ctx context.Context, provider *ProviderConfig, modelID string, messages []Message, opts RequestOptions, stream bool) (*http.Request, error) {
	body := chatRequestBody{
		Model:    UpstreamModelID(modelID),
		Messages: messages,
		Stream:   stream,
	}
	if opts.WebSearch {
		body.WebSearchOptions = &webSearchOptions{SearchContextSize: opts.WebSearchContextSize}
	}
	if opts.WikiGrounding {
		enabled := true
		body.WikiGrounding = &enabled
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	switch provider.HeaderStyle {
	case HeaderSubscriptionKey:
		req.Header.Set("api-subscription-key", provider.APIKey)
	default:
		req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}
	if provider.Name == ProviderOpenRouter {
		req.Header.Set("HTTP-Referer", "http://localhost:3000")
		req.Header.Set("X-Title", "Chat Gateway")
	}

	return req, nil
}

// Chat sends a blocking chat request and returns the full completion with
// whatever usage counts the provider reported
func (c *Client) Chat(ctx context.Context, modelID string, messages []Message, opts RequestOptions) (*ChatResult, error) {
	provider, err := c.registry.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"provider":      provider.Name,
		"model":         modelID,
		"message_count": len(messages),
		"web_search":    opts.WebSearch,
	}).Info("Calling chat-completion provider")

	req, err := c.buildRequest(ctx, provider, modelID, messages, opts, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Kind: classifyTransportError(err), Provider: provider.Name, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ProviderError{
			Kind:     classifyStatus(resp.StatusCode),
			Provider: provider.Name,
			Status:   resp.StatusCode,
			Message:  string(body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Kind: classifyTransportError(err), Provider: provider.Name, Message: err.Error()}
	}

	var chatResp chatResponseBody
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, &ProviderError{Kind: FailureUnknown, Provider: provider.Name, Message: fmt.Sprintf("error decoding response: %v", err)}
	}

	if len(chatResp.Choices) == 0 {
		return nil, &ProviderError{Kind: FailureUnknown, Provider: provider.Name, Message: "no choices in response"}
	}

	content := chatResp.Choices[0].Message.Content
	logger.Log.WithField("content_length", len(content)).Debug("Extracted content from response")

	return &ChatResult{Content: content, Usage: chatResp.Usage}, nil
}

// ChatStream sends a streaming chat request and returns a channel of content
// fragments. The channel is closed after the final chunk; a mid-stream
// failure is delivered as a chunk with Err set rather than silently closing.
func (c *Client) ChatStream(ctx context.Context, modelID string, messages []Message, opts RequestOptions) (<-chan StreamChunk, error) {
	provider, err := c.registry.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	logger.Log.WithFields(logrus.Fields{
		"provider":      provider.Name,
		"model":         modelID,
		"message_count": len(messages),
		"web_search":    opts.WebSearch,
	}).Info("Calling chat-completion provider (streaming)")

	req, err := c.buildRequest(ctx, provider, modelID, messages, opts, true)
	if err != nil {
		return nil, err
	}

	// No overall client timeout for streams; the context governs their lifetime
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Kind: classifyTransportError(err), Provider: provider.Name, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ProviderError{
			Kind:     classifyStatus(resp.StatusCode),
			Provider: provider.Name,
			Status:   resp.StatusCode,
			Message:  string(body),
		}
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		var usage *ResponseUsage

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Text()

			// Skip empty lines and [DONE] markers
			if line == "" || line == "data: [DONE]" {
				continue
			}

			// Parse SSE event format: "data: {json}"
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			jsonStr := strings.TrimPrefix(line, "data: ")

			var streamResp chatResponseBody
			if err := json.Unmarshal([]byte(jsonStr), &streamResp); err != nil {
				logger.Log.WithError(err).Warn("Error parsing stream chunk")
				continue
			}

			// Usage arrives at the end with empty choices
			if streamResp.Usage != nil {
				usage = streamResp.Usage
			}

			if len(streamResp.Choices) > 0 && streamResp.Choices[0].Delta.Content != "" {
				// Sends race against cancellation: a receiver that went
				// away must not strand this goroutine on the channel
				select {
				case chunks <- StreamChunk{Content: streamResp.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Error("Scanner error during streaming")
			select {
			case chunks <- StreamChunk{Err: &ProviderError{
				Kind:     classifyTransportError(err),
				Provider: provider.Name,
				Message:  err.Error(),
			}}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case chunks <- StreamChunk{Usage: usage, IsDone: true}:
		case <-ctx.Done():
		}
	}()

	return chunks, nil
}
