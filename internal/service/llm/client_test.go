package llm

import (
	"chat-gateway/internal/config"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func clientForServer(t *testing.T, serverURL string) *Client {
	t.Helper()
	catalog := config.NewStaticModelCatalog("openrouter/test-model", 1.5, []config.Model{
		{ID: "openrouter/test-model", Name: "Test", Provider: "openrouter", WebSearch: true},
		{ID: "sarvam/test-model", Name: "Sarvam Test", Provider: "sarvam", WikiGrounding: true},
	}, nil)
	registry := NewRegistry(config.ProvidersConfig{
		OpenRouterAPIKey:  "or-key",
		OpenRouterBaseURL: serverURL,
		SarvamAPIKey:      "sv-key",
		SarvamBaseURL:     serverURL,
	}, catalog)
	return NewClient(registry, 5*time.Second)
}

func TestChat(t *testing.T) {
	var gotAuth, gotPath, gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"Hi there!"}}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`)
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	result, err := client.Chat(context.Background(), "openrouter/test-model", []Message{{Role: "user", Content: "hello"}}, RequestOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.Content != "Hi there!" {
		t.Errorf("Unexpected content: %q", result.Content)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 16 {
		t.Errorf("Unexpected usage: %+v", result.Usage)
	}
	if gotAuth != "Bearer or-key" {
		t.Errorf("Expected bearer credential, got %q", gotAuth)
	}
	if gotReferer == "" {
		t.Error("Expected HTTP-Referer header for openrouter")
	}
	if gotPath != "/chat/completions" {
		t.Errorf("Unexpected path: %q", gotPath)
	}
}

func TestChat_SubscriptionKeyHeader(t *testing.T) {
	var gotKey, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-subscription-key")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	_, err := client.Chat(context.Background(), "sarvam/test-model", []Message{{Role: "user", Content: "hello"}}, RequestOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotKey != "sv-key" {
		t.Errorf("Expected subscription key header, got %q", gotKey)
	}
	if gotAuth != "" {
		t.Errorf("Expected no Authorization header for sarvam, got %q", gotAuth)
	}
}

func TestChat_ErrorClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected FailureKind
	}{
		{http.StatusUnauthorized, FailureAuthInvalid},
		{http.StatusForbidden, FailureAuthInvalid},
		{http.StatusPaymentRequired, FailureUpstreamQuota},
		{http.StatusTooManyRequests, FailureRateLimited},
		{http.StatusGatewayTimeout, FailureTimeout},
		{http.StatusBadGateway, FailureUnavailable},
		{http.StatusInternalServerError, FailureUnavailable},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream says no", tt.status)
			}))
			defer server.Close()

			client := clientForServer(t, server.URL)

			_, err := client.Chat(context.Background(), "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
			if err == nil {
				t.Fatal("Expected error")
			}

			var provErr *ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("Expected ProviderError, got %T: %v", err, err)
			}
			if provErr.Kind != tt.expected {
				t.Errorf("Expected kind %s, got %s", tt.expected, provErr.Kind)
			}
			if provErr.Status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, provErr.Status)
			}
		})
	}
}

func TestChat_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	_, err := client.Chat(context.Background(), "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
	if err == nil {
		t.Fatal("Expected error for empty choices")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != FailureUnknown {
		t.Errorf("Expected unknown failure kind, got %v", err)
	}
}

func TestChat_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Chat(ctx, "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if provErr.Kind != FailureTimeout {
		t.Errorf("Expected timeout classification, got %s", provErr.Kind)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":2,\"total_tokens\":9}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	chunks, err := client.ChatStream(context.Background(), "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var content string
	var usage *ResponseUsage
	sawDone := false
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("Unexpected error chunk: %v", chunk.Err)
		}
		if chunk.IsDone {
			sawDone = true
			usage = chunk.Usage
			continue
		}
		content += chunk.Content
	}

	if content != "Hello" {
		t.Errorf("Expected streamed content 'Hello', got %q", content)
	}
	if !sawDone {
		t.Error("Expected a final done chunk")
	}
	if usage == nil || usage.TotalTokens != 9 {
		t.Errorf("Expected usage total 9 on the done chunk, got %+v", usage)
	}
}

// Cancelling the context mid-stream must release the reader goroutine: the
// chunk channel closes instead of blocking forever on an abandoned send.
func TestChatStream_CancelClosesChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		// Hold the stream open until the client gives up
		<-r.Context().Done()
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chunks, err := client.ChatStream(ctx, "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	select {
	case chunk := <-chunks:
		if chunk.Content != "first" {
			t.Fatalf("Expected first chunk, got %+v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first chunk")
	}

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("Chunk channel not closed after cancellation, reader goroutine still blocked")
		}
	}
}

func TestChatStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := clientForServer(t, server.URL)

	_, err := client.ChatStream(context.Background(), "openrouter/test-model", []Message{{Role: "user", Content: "hi"}}, RequestOptions{})
	if err == nil {
		t.Fatal("Expected error before streaming begins")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) || provErr.Kind != FailureRateLimited {
		t.Errorf("Expected rate_limited classification, got %v", err)
	}
}
