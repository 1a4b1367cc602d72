package chat

import (
	"chat-gateway/internal/cache"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/conversation"
	"chat-gateway/internal/service/llm"
	"chat-gateway/internal/service/tokens"
	"chat-gateway/pkg/validation"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendMessageRequest contains all the parameters needed to dispatch a chat
// request
type SendMessageRequest struct {
	ExternalUserID       string // stable identifier from the auth collaborator
	Messages             []llm.Message
	Model                string
	ThreadID             string
	EnableWebSearch      bool
	WebSearchContextSize string
	EnableWikiGrounding  bool
}

// Usage carries normalized token counts for a completed exchange
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// SendMessageResponse is the normalized non-streaming result
type SendMessageResponse struct {
	Content            string
	AssistantMessageID string
	ThreadID           string
	Model              string
	Usage              Usage
	WebSearchUsed      bool
	Cached             bool
}

// StreamMeta is sent on the first chunk of a stream
type StreamMeta struct {
	ThreadID string
	Model    string
}

// StreamFinal is the completion marker of a stream, carrying the persisted
// message id and the reconciled usage
type StreamFinal struct {
	MessageID     string
	Usage         Usage
	WebSearchUsed bool
}

// StreamMessageChunk is one element of a streaming response. Exactly one of
// the fields is set; Err chunks are distinguishable from assistant content.
type StreamMessageChunk struct {
	Content string
	Meta    *StreamMeta
	Final   *StreamFinal
	Err     *Error
}

// ChatService orchestrates a chat request: validation, identity resolution,
// model migration, quota gating, provider dispatch, usage reconciliation and
// persistence
type ChatService struct {
	db        db.Database
	registry  *llm.Registry
	client    llm.Chatter
	ledger    *tokens.Ledger
	costs     *tokens.CostEngine
	store     *conversation.Service
	cache     cache.Cache
	cacheTTL  time.Duration
	validator *validation.ChatRequestValidator
}

// NewChatService creates the dispatcher. The cache may be nil; an absent
// cache is a valid, slower configuration.
func NewChatService(database db.Database, registry *llm.Registry, client llm.Chatter, ledger *tokens.Ledger, costs *tokens.CostEngine, store *conversation.Service, responseCache cache.Cache, cacheTTL time.Duration) *ChatService {
	return &ChatService{
		db:        database,
		registry:  registry,
		client:    client,
		ledger:    ledger,
		costs:     costs,
		store:     store,
		cache:     responseCache,
		cacheTTL:  cacheTTL,
		validator: validation.NewChatRequestValidator(),
	}
}

// dispatch holds the per-request state shared by the blocking and streaming
// paths after validation and resolution
type dispatch struct {
	user          *db.User
	model         string
	threadID      string
	useWebSearch  bool
	useWiki       bool
	inputEstimate int
	lastUserText  string
}

// prepare runs the request through validation, identity resolution, model
// migration/resolution and feature determination
func (s *ChatService) prepare(req SendMessageRequest) (*dispatch, *Error) {
	if err := s.validator.ValidateChatRequest(req.Messages, req.WebSearchContextSize); err != nil {
		return nil, badRequest(err.Error())
	}

	if req.ExternalUserID == "" {
		return nil, &Error{Kind: KindUnauthorized, Message: "no user identity"}
	}
	user, err := s.db.GetOrCreateUser(req.ExternalUserID)
	if err != nil {
		// A wrong user must never be substituted silently
		return nil, internalError("failed to resolve user identity", err)
	}

	model := s.registry.MigrateModelID(req.Model)
	if _, err := s.registry.Resolve(model); err != nil {
		return nil, internalError("provider configuration error", err)
	}

	d := &dispatch{
		user:  user,
		model: model,
		// Feature flags the model doesn't support are dropped, not rejected
		useWebSearch:  req.EnableWebSearch && s.registry.Supports(model, llm.CapabilityWebSearch),
		useWiki:       req.EnableWikiGrounding && s.registry.Supports(model, llm.CapabilityWikiGrounding),
		inputEstimate: tokens.EstimateMessages(req.Messages),
	}

	d.threadID = req.ThreadID
	if d.threadID == "" {
		d.threadID = uuid.New().String()
	}

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			d.lastUserText = req.Messages[i].Content
			break
		}
	}

	return d, nil
}

// quotaGate grants the daily allowance if needed and rejects the request
// before any upstream call when the balance cannot cover the input estimate
func (s *ChatService) quotaGate(d *dispatch) *Error {
	s.ledger.GrantIfNeeded(d.user.ID)

	remaining := s.ledger.Remaining(d.user.ID)
	if remaining < d.inputEstimate {
		logger.Log.WithFields(logrus.Fields{
			"user_id":   d.user.ID,
			"remaining": remaining,
			"estimated": d.inputEstimate,
		}).Info("Rejecting request over daily token allowance")
		return quotaExceeded(d.inputEstimate - remaining)
	}
	return nil
}

func (d *dispatch) requestOptions(contextSize string) llm.RequestOptions {
	return llm.RequestOptions{
		WebSearch:            d.useWebSearch,
		WebSearchContextSize: contextSize,
		WikiGrounding:        d.useWiki,
	}
}

// SendMessage processes a chat request in blocking mode
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	d, derr := s.prepare(req)
	if derr != nil {
		return nil, derr
	}

	// A cache hit short-circuits the quota gate, the provider call and
	// persistence entirely; no upstream work happened, so usage is zero
	cacheKey := cache.BuildKey(d.user.ID, d.model, req.Messages, d.useWebSearch, d.useWiki)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			logger.Log.WithFields(logrus.Fields{"user_id": d.user.ID, "model": d.model}).Debug("Response cache hit")
			return &SendMessageResponse{
				Content:       cached.Content,
				ThreadID:      d.threadID,
				Model:         cached.Model,
				WebSearchUsed: d.useWebSearch,
				Cached:        true,
			}, nil
		}
	}

	if qerr := s.quotaGate(d); qerr != nil {
		return nil, qerr
	}

	result, err := s.client.Chat(ctx, d.model, req.Messages, d.requestOptions(req.WebSearchContextSize))
	if err != nil {
		return nil, classifyProviderError(err)
	}

	usage := s.normalizeUsage(d, result.Usage, result.Content)

	s.reconcile(d, usage)
	saved := s.persist(d, result.Content, usage)

	if s.cache != nil {
		s.cache.SetWithTTL(cacheKey, &cache.CachedResponse{Content: result.Content, Model: d.model}, s.cacheTTL)
	}

	return &SendMessageResponse{
		Content:            result.Content,
		AssistantMessageID: saved.AssistantMessageID,
		ThreadID:           d.threadID,
		Model:              d.model,
		Usage:              usage,
		WebSearchUsed:      d.useWebSearch,
	}, nil
}

// SendMessageStream processes a chat request in streaming mode. The returned
// channel yields content fragments, then a final chunk with the persisted
// message id and reconciled usage, then closes. Cancelling the context stops
// the upstream read; partial content already produced is still reconciled
// and persisted.
func (s *ChatService) SendMessageStream(ctx context.Context, req SendMessageRequest) (<-chan StreamMessageChunk, error) {
	d, derr := s.prepare(req)
	if derr != nil {
		return nil, derr
	}

	if qerr := s.quotaGate(d); qerr != nil {
		return nil, qerr
	}

	upstream, err := s.client.ChatStream(ctx, d.model, req.Messages, d.requestOptions(req.WebSearchContextSize))
	if err != nil {
		return nil, classifyProviderError(err)
	}

	out := make(chan StreamMessageChunk)

	go func() {
		defer close(out)

		out <- StreamMessageChunk{Meta: &StreamMeta{ThreadID: d.threadID, Model: d.model}}

		var fullResponse string
		var reportedUsage *llm.ResponseUsage

	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case chunk, ok := <-upstream:
				if !ok {
					break loop
				}
				if chunk.Err != nil {
					out <- StreamMessageChunk{Err: classifyProviderError(chunk.Err)}
					break loop
				}
				if chunk.Usage != nil {
					reportedUsage = chunk.Usage
				}
				if chunk.Content != "" {
					fullResponse += chunk.Content
					out <- StreamMessageChunk{Content: chunk.Content}
				}
			}
		}

		// Nothing produced: nothing to bill or persist
		if fullResponse == "" {
			return
		}

		usage := s.normalizeUsage(d, reportedUsage, fullResponse)
		s.reconcile(d, usage)
		saved := s.persist(d, fullResponse, usage)

		if ctx.Err() == nil {
			out <- StreamMessageChunk{Final: &StreamFinal{
				MessageID:     saved.AssistantMessageID,
				Usage:         usage,
				WebSearchUsed: d.useWebSearch,
			}}
		}
	}()

	return out, nil
}

// normalizeUsage prefers the provider's reported counts and falls back to
// length-based estimates
func (s *ChatService) normalizeUsage(d *dispatch, reported *llm.ResponseUsage, content string) Usage {
	usage := Usage{
		InputTokens:  d.inputEstimate,
		OutputTokens: tokens.EstimateText(content),
	}
	if reported != nil {
		if reported.PromptTokens > 0 {
			usage.InputTokens = reported.PromptTokens
		}
		if reported.CompletionTokens > 0 {
			usage.OutputTokens = reported.CompletionTokens
		}
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return usage
}

// reconcile charges the effective cost against the ledger, bumps the
// aggregate usage counter and emits the tracking entry. The three updates
// are independent counters and run concurrently; each is attempted even when
// another fails. A bookkeeping failure never erases a response already
// shown to the user.
func (s *ChatService) reconcile(d *dispatch, usage Usage) {
	effectiveCost := s.costs.EffectiveCost(d.model, usage.TotalTokens, d.useWebSearch)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if !s.ledger.Consume(d.user.ID, effectiveCost) {
			logger.Log.WithFields(logrus.Fields{
				"user_id": d.user.ID,
				"cost":    effectiveCost,
			}).Warn("Allowance exhausted during reconciliation, balance left at floor")
		}
	}()

	go func() {
		defer wg.Done()
		if err := s.ledger.RecordUsage(d.user.ID, usage.TotalTokens); err != nil {
			logger.Log.WithError(err).WithField("user_id", d.user.ID).Error("Failed to record aggregate usage")
		}
	}()

	go func() {
		defer wg.Done()
		logger.Log.WithFields(logrus.Fields{
			"user_id":        d.user.ID,
			"model":          d.model,
			"input_tokens":   usage.InputTokens,
			"output_tokens":  usage.OutputTokens,
			"effective_cost": effectiveCost,
			"web_search":     d.useWebSearch,
		}).Info("Chat usage reconciled")
	}()

	wg.Wait()
}

// persist writes the exchange through the store adapter. Persistence
// failures degrade to empty ids; the response already delivered stands.
func (s *ChatService) persist(d *dispatch, assistantText string, usage Usage) conversation.SaveResult {
	if err := s.store.EnsureThread(d.threadID, d.user.ID); err != nil {
		logger.Log.WithError(err).WithField("thread_id", d.threadID).Error("Failed to ensure thread, skipping persistence")
		return conversation.SaveResult{}
	}

	return s.store.SaveExchange(d.threadID, d.lastUserText, assistantText, d.model, usage.TotalTokens)
}
