package handlers

import (
	"chat-gateway/internal/app"
	"chat-gateway/internal/auth"
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	chatService "chat-gateway/internal/service/chat"
	conversationService "chat-gateway/internal/service/conversation"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/tokens"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Request/Response types

type ChatRequest struct {
	Messages             []llm.Message `json:"messages"`
	Model                string        `json:"model,omitempty"`
	ThreadID             string        `json:"thread_id,omitempty"`
	EnableWebSearch      bool          `json:"enable_web_search,omitempty"`
	WebSearchContextSize string        `json:"web_search_context_size,omitempty"`
	EnableWikiGrounding  bool          `json:"enable_wiki_grounding,omitempty"`
	Stream               bool          `json:"stream,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	ID      string `json:"id,omitempty"`
}

type ChatResponse struct {
	Message       ChatMessage       `json:"message"`
	Usage         chatService.Usage `json:"usage"`
	WebSearchUsed bool              `json:"web_search_used"`
	ThreadID      string            `json:"thread_id,omitempty"`
	Model         string            `json:"model,omitempty"`
	Cached        bool              `json:"cached,omitempty"`
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type ThreadInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type ThreadsResponse struct {
	Threads []ThreadInfo `json:"threads"`
}

type MessageData struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type MessagesResponse struct {
	Messages []MessageData `json:"messages"`
}

type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ModelsResponse struct {
	Models       []config.Model `json:"models"`
	DefaultModel string         `json:"default_model"`
}

type ResponseData struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
	IsPrimary  bool   `json:"is_primary"`
}

type ResponsesResponse struct {
	Responses []ResponseData `json:"responses"`
}

type QuotaResponse struct {
	TokensRemaining int `json:"tokens_remaining"`
	DailyCap        int `json:"daily_cap"`
}

// ChatHandlers is the HTTP surface over the dispatcher and store services
type ChatHandlers struct {
	config      *app.Config
	chatService *chatService.ChatService
	convService *conversationService.Service
	ledger      *tokens.Ledger
}

// NewChatHandlers creates handlers over the service layer
func NewChatHandlers(cfg *app.Config, chat *chatService.ChatService, conv *conversationService.Service, ledger *tokens.Ledger) *ChatHandlers {
	return &ChatHandlers{
		config:      cfg,
		chatService: chat,
		convService: conv,
		ledger:      ledger,
	}
}

// externalIDFrom extracts the authenticated external user identifier placed
// in the context by the auth middleware
func externalIDFrom(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(auth.UserContextKey).(string)
	return id, ok && id != ""
}

// ChatHandler is the REST endpoint for chat (non-streaming unless the
// payload asks to stream)
func (ch *ChatHandlers) ChatHandler(w http.ResponseWriter, r *http.Request) {
	externalID, ok := externalIDFrom(r)
	if !ok {
		ch.sendError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", nil, nil)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ch.sendError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err, nil)
		return
	}

	if req.Stream {
		ch.streamChat(w, r, externalID, req)
		return
	}

	logger.Log.WithFields(logrus.Fields{"user": externalID, "model": req.Model}).Info("Chat request received")

	response, err := ch.chatService.SendMessage(r.Context(), chatService.SendMessageRequest{
		ExternalUserID:       externalID,
		Messages:             req.Messages,
		Model:                req.Model,
		ThreadID:             req.ThreadID,
		EnableWebSearch:      req.EnableWebSearch,
		WebSearchContextSize: req.WebSearchContextSize,
		EnableWikiGrounding:  req.EnableWikiGrounding,
	})
	if err != nil {
		ch.sendChatError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ChatResponse{
		Message: ChatMessage{
			Role:    "assistant",
			Content: response.Content,
			ID:      response.AssistantMessageID,
		},
		Usage:         response.Usage,
		WebSearchUsed: response.WebSearchUsed,
		ThreadID:      response.ThreadID,
		Model:         response.Model,
		Cached:        response.Cached,
	})
}

// ChatStreamHandler is the SSE endpoint for streaming chat responses
func (ch *ChatHandlers) ChatStreamHandler(w http.ResponseWriter, r *http.Request) {
	externalID, ok := externalIDFrom(r)
	if !ok {
		ch.sendError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity", nil, nil)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ch.sendError(w, http.StatusBadRequest, "bad_request", "Invalid request body", err, nil)
		return
	}

	ch.streamChat(w, r, externalID, req)
}

func (ch *ChatHandlers) streamChat(w http.ResponseWriter, r *http.Request, externalID string, req ChatRequest) {
	logger.Log.WithFields(logrus.Fields{"user": externalID, "model": req.Model}).Info("Chat stream request received")

	flusher, ok := w.(http.Flusher)
	if !ok {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Streaming not supported", nil, nil)
		return
	}

	chunks, err := ch.chatService.SendMessageStream(r.Context(), chatService.SendMessageRequest{
		ExternalUserID:       externalID,
		Messages:             req.Messages,
		Model:                req.Model,
		ThreadID:             req.ThreadID,
		EnableWebSearch:      req.EnableWebSearch,
		WebSearchContextSize: req.WebSearchContextSize,
		EnableWikiGrounding:  req.EnableWikiGrounding,
	})
	if err != nil {
		// Pre-stream failures still map to the plain JSON error shape
		ch.sendChatError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	for chunk := range chunks {
		switch {
		case chunk.Meta != nil:
			fmt.Fprintf(w, "data: THREAD:%s\n\n", chunk.Meta.ThreadID)
			fmt.Fprintf(w, "data: MODEL:%s\n\n", chunk.Meta.Model)
			flusher.Flush()
		case chunk.Err != nil:
			// Error fragments are tagged so a client never mistakes
			// them for assistant content
			payload, _ := json.Marshal(ErrorResponse{
				Error: chunk.Err.Message,
				Code:  string(chunk.Err.Kind),
			})
			fmt.Fprintf(w, "data: ERROR:%s\n\n", payload)
			flusher.Flush()
		case chunk.Final != nil:
			payload, _ := json.Marshal(struct {
				MessageID     string            `json:"message_id"`
				Usage         chatService.Usage `json:"usage"`
				WebSearchUsed bool              `json:"web_search_used"`
			}{chunk.Final.MessageID, chunk.Final.Usage, chunk.Final.WebSearchUsed})
			fmt.Fprintf(w, "data: DONE:%s\n\n", payload)
			flusher.Flush()
		case chunk.Content != "":
			escaped := strings.ReplaceAll(chunk.Content, "\n", "\\n")
			fmt.Fprintf(w, "data: %s\n\n", escaped)
			flusher.Flush()
		}
	}

	// End-of-stream marker
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// GetThreadsHandler returns all threads for the authenticated user
func (ch *ChatHandlers) GetThreadsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	threads, err := ch.convService.GetUserThreads(user)
	if err != nil {
		logger.Log.WithError(err).Error("Error retrieving threads")
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error retrieving threads", err, nil)
		return
	}

	infos := make([]ThreadInfo, 0, len(threads))
	for _, thread := range threads {
		infos = append(infos, ThreadInfo{
			ID:        thread.ID,
			Title:     thread.Title,
			CreatedAt: thread.CreatedAt.String(),
			UpdatedAt: thread.UpdatedAt.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ThreadsResponse{Threads: infos})
}

// GetThreadMessagesHandler returns all messages from a specific thread
func (ch *ChatHandlers) GetThreadMessagesHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	messages, err := ch.convService.GetThreadMessages(threadID, user)
	if err != nil {
		ch.sendStoreError(w, err, "Error retrieving messages")
		return
	}

	msgData := make([]MessageData, 0, len(messages))
	for _, msg := range messages {
		msgData = append(msgData, MessageData{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MessagesResponse{Messages: msgData})
}

// DeleteThreadHandler deletes a specific thread
func (ch *ChatHandlers) DeleteThreadHandler(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	if err := ch.convService.DeleteThread(threadID, user); err != nil {
		ch.sendStoreError(w, err, "Error deleting thread")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DeleteResponse{
		Success: true,
		Message: "Thread deleted successfully",
	})
}

// GetModelsHandler returns the model catalog
func (ch *ChatHandlers) GetModelsHandler(w http.ResponseWriter, r *http.Request) {
	catalog := ch.config.ModelCatalog()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ModelsResponse{
		Models:       catalog.AvailableModels(),
		DefaultModel: catalog.DefaultModel(),
	})
}

// GetQuotaHandler returns the caller's remaining daily allowance
func (ch *ChatHandlers) GetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	ch.ledger.GrantIfNeeded(user)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuotaResponse{
		TokensRemaining: ch.ledger.Remaining(user),
		DailyCap:        ch.ledger.Cap(),
	})
}

// GetMessageResponsesHandler lists the alternate answers for a message
func (ch *ChatHandlers) GetMessageResponsesHandler(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	responses, err := ch.convService.GetMessageResponses(messageID, user)
	if err != nil {
		ch.sendStoreError(w, err, "Error retrieving responses")
		return
	}

	data := make([]ResponseData, 0, len(responses))
	for _, resp := range responses {
		data = append(data, ResponseData{
			ID:         resp.ID,
			Model:      resp.Model,
			Content:    resp.Content,
			TokensUsed: resp.TokensUsed,
			IsPrimary:  resp.IsPrimary,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResponsesResponse{Responses: data})
}

// SwitchPrimaryResponseHandler makes one alternate answer the primary
func (ch *ChatHandlers) SwitchPrimaryResponseHandler(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	responseID := r.PathValue("responseId")
	user, err := ch.getUser(r)
	if err != nil {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", "Error resolving user", err, nil)
		return
	}

	if err := ch.convService.VerifyMessageOwner(messageID, user); err != nil {
		ch.sendStoreError(w, err, "Error switching primary response")
		return
	}

	if err := ch.convService.SwitchPrimaryResponse(messageID, responseID); err != nil {
		ch.sendStoreError(w, err, "Error switching primary response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DeleteResponse{
		Success: true,
		Message: "Primary response updated",
	})
}

// Helper methods

// getUser resolves the internal user id for the authenticated external
// identity, provisioning the account on first contact
func (ch *ChatHandlers) getUser(r *http.Request) (string, error) {
	id, ok := externalIDFrom(r)
	if !ok {
		return "", fmt.Errorf("no user identity in request context")
	}
	user, err := ch.config.DB.GetOrCreateUser(id)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// sendError sends a standardized JSON error response
func (ch *ChatHandlers) sendError(w http.ResponseWriter, status int, code, message string, err error, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
	if err != nil {
		errResp.Error = err.Error()
	} else {
		errResp.Error = message
	}
	json.NewEncoder(w).Encode(errResp)
}

// sendChatError maps a dispatcher error onto the transport
func (ch *ChatHandlers) sendChatError(w http.ResponseWriter, err error) {
	chatErr := chatService.AsError(err)
	logger.Log.WithError(err).WithField("kind", chatErr.Kind).Error("Error from chat service")

	var details map[string]any
	if chatErr.Kind == chatService.KindQuotaExceeded {
		details = map[string]any{"deficit_tokens": chatErr.Deficit}
	}
	ch.sendError(w, chatErr.HTTPStatus(), string(chatErr.Kind), chatErr.Message, nil, details)
}

// sendStoreError maps a store-adapter error onto the transport
func (ch *ChatHandlers) sendStoreError(w http.ResponseWriter, err error, fallback string) {
	logger.Log.WithError(err).Error(fallback)
	if strings.Contains(err.Error(), "unauthorized") {
		ch.sendError(w, http.StatusForbidden, "forbidden", "Not the owner of this resource", err, nil)
	} else if strings.Contains(err.Error(), "not found") {
		ch.sendError(w, http.StatusNotFound, "not_found", "Resource not found", err, nil)
	} else {
		ch.sendError(w, http.StatusInternalServerError, "internal_error", fallback, err, nil)
	}
}
