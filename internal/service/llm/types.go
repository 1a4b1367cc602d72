package llm

import "context"

// Message is a single role/content entry in a chat exchange
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseUsage carries the token counts a provider reports for a completion
type ResponseUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RequestOptions are the optional per-request features attached to a
// provider call. Flags for features the model does not support are dropped
// by the dispatcher before they reach the client.
type RequestOptions struct {
	WebSearch            bool
	WebSearchContextSize string
	WikiGrounding        bool
}

// ChatResult is the normalized outcome of a blocking provider call
type ChatResult struct {
	Content string
	Usage   *ResponseUsage
}

// StreamChunk is one fragment of a streaming provider response. Usage, when
// the provider reports it, arrives on the final chunk.
type StreamChunk struct {
	Content string
	Usage   *ResponseUsage
	Err     error
	IsDone  bool
}

// Chatter is the chat-completion capability consumed by the dispatcher.
// Cancelling the context aborts the upstream call; for streams it stops the
// per-chunk reads and closes the chunk channel.
type Chatter interface {
	Chat(ctx context.Context, modelID string, messages []Message, opts RequestOptions) (*ChatResult, error)
	ChatStream(ctx context.Context, modelID string, messages []Message, opts RequestOptions) (<-chan StreamChunk, error)
}
