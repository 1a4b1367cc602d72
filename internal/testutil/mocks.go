package testutil

import (
	"chat-gateway/internal/cache"
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/llm"
	"context"
	"errors"
	"time"
)

// MockDatabase is a mock implementation of db.Database for testing
type MockDatabase struct {
	// User mocks
	GetUserByUsernameFunc func(username string) (*db.User, error)
	CreateUserFunc        func(username, email, password string) (*db.User, error)
	GetOrCreateUserFunc   func(externalID string) (*db.User, error)

	// Thread mocks
	EnsureThreadFunc     func(threadID, userID, title string) error
	GetThreadFunc        func(threadID string) (*db.Thread, error)
	GetThreadsByUserFunc func(userID string) ([]db.Thread, error)
	DeleteThreadFunc     func(threadID string) error
	SetThreadTitleFunc   func(threadID, title, ifCurrentTitle string) (bool, error)

	// Message mocks
	AddMessageFunc                      func(threadID, role, content string) (*db.Message, error)
	GetThreadMessagesFunc               func(threadID string) ([]db.Message, error)
	GetMessageFunc                      func(messageID string) (*db.Message, error)
	FindRecentMessageFunc               func(threadID, role, content string) (*db.Message, error)
	FindPlaceholderAssistantMessageFunc func(threadID string, maxContentLen int) (*db.Message, error)
	UpdateMessageContentFunc            func(messageID, content string) error
	CountThreadMessagesFunc             func(threadID string) (int, error)

	// Message response mocks
	UpsertMessageResponseFunc func(messageID, model, content string, tokensUsed int, isPrimary bool) (*db.MessageResponse, error)
	GetMessageResponsesFunc   func(messageID string) ([]db.MessageResponse, error)
	ClearPrimaryResponsesFunc func(messageID string) error
	SetPrimaryResponseFunc    func(messageID, responseID string) (*db.MessageResponse, error)

	// Token allowance mocks
	GrantAllowanceFunc func(userID string, tokens int, window time.Duration) error
	GetAllowanceFunc   func(userID string) (*db.TokenAllowance, error)
	ConsumeTokensFunc  func(userID string, amount int) (bool, error)

	// Usage record mocks
	AddUsageFunc func(userID string, periodStart time.Time, tokens int) error
	GetUsageFunc func(userID string, periodStart time.Time) (*db.UsageRecord, error)
}

var _ db.Database = (*MockDatabase)(nil)

// User methods
func (m *MockDatabase) GetUserByUsername(username string) (*db.User, error) {
	if m.GetUserByUsernameFunc != nil {
		return m.GetUserByUsernameFunc(username)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) CreateUser(username, email, password string) (*db.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(username, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetOrCreateUser(externalID string) (*db.User, error) {
	if m.GetOrCreateUserFunc != nil {
		return m.GetOrCreateUserFunc(externalID)
	}
	return &db.User{ID: "user-" + externalID, Username: externalID}, nil
}

// Thread methods
func (m *MockDatabase) EnsureThread(threadID, userID, title string) error {
	if m.EnsureThreadFunc != nil {
		return m.EnsureThreadFunc(threadID, userID, title)
	}
	return nil
}

func (m *MockDatabase) GetThread(threadID string) (*db.Thread, error) {
	if m.GetThreadFunc != nil {
		return m.GetThreadFunc(threadID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetThreadsByUser(userID string) ([]db.Thread, error) {
	if m.GetThreadsByUserFunc != nil {
		return m.GetThreadsByUserFunc(userID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) DeleteThread(threadID string) error {
	if m.DeleteThreadFunc != nil {
		return m.DeleteThreadFunc(threadID)
	}
	return errors.New("not implemented")
}

func (m *MockDatabase) SetThreadTitle(threadID, title, ifCurrentTitle string) (bool, error) {
	if m.SetThreadTitleFunc != nil {
		return m.SetThreadTitleFunc(threadID, title, ifCurrentTitle)
	}
	return false, nil
}

// Message methods
func (m *MockDatabase) AddMessage(threadID, role, content string) (*db.Message, error) {
	if m.AddMessageFunc != nil {
		return m.AddMessageFunc(threadID, role, content)
	}
	return &db.Message{ID: "msg-1", ThreadID: threadID, Role: role, Content: content}, nil
}

func (m *MockDatabase) GetThreadMessages(threadID string) ([]db.Message, error) {
	if m.GetThreadMessagesFunc != nil {
		return m.GetThreadMessagesFunc(threadID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) GetMessage(messageID string) (*db.Message, error) {
	if m.GetMessageFunc != nil {
		return m.GetMessageFunc(messageID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) FindRecentMessage(threadID, role, content string) (*db.Message, error) {
	if m.FindRecentMessageFunc != nil {
		return m.FindRecentMessageFunc(threadID, role, content)
	}
	return nil, nil
}

func (m *MockDatabase) FindPlaceholderAssistantMessage(threadID string, maxContentLen int) (*db.Message, error) {
	if m.FindPlaceholderAssistantMessageFunc != nil {
		return m.FindPlaceholderAssistantMessageFunc(threadID, maxContentLen)
	}
	return nil, nil
}

func (m *MockDatabase) UpdateMessageContent(messageID, content string) error {
	if m.UpdateMessageContentFunc != nil {
		return m.UpdateMessageContentFunc(messageID, content)
	}
	return nil
}

func (m *MockDatabase) CountThreadMessages(threadID string) (int, error) {
	if m.CountThreadMessagesFunc != nil {
		return m.CountThreadMessagesFunc(threadID)
	}
	return 0, nil
}

// Message response methods
func (m *MockDatabase) UpsertMessageResponse(messageID, model, content string, tokensUsed int, isPrimary bool) (*db.MessageResponse, error) {
	if m.UpsertMessageResponseFunc != nil {
		return m.UpsertMessageResponseFunc(messageID, model, content, tokensUsed, isPrimary)
	}
	return &db.MessageResponse{ID: "resp-1", MessageID: messageID, Model: model, Content: content, TokensUsed: tokensUsed, IsPrimary: isPrimary}, nil
}

func (m *MockDatabase) GetMessageResponses(messageID string) ([]db.MessageResponse, error) {
	if m.GetMessageResponsesFunc != nil {
		return m.GetMessageResponsesFunc(messageID)
	}
	return nil, errors.New("not implemented")
}

func (m *MockDatabase) ClearPrimaryResponses(messageID string) error {
	if m.ClearPrimaryResponsesFunc != nil {
		return m.ClearPrimaryResponsesFunc(messageID)
	}
	return nil
}

func (m *MockDatabase) SetPrimaryResponse(messageID, responseID string) (*db.MessageResponse, error) {
	if m.SetPrimaryResponseFunc != nil {
		return m.SetPrimaryResponseFunc(messageID, responseID)
	}
	return nil, errors.New("not implemented")
}

// Token allowance methods
func (m *MockDatabase) GrantAllowance(userID string, tokens int, window time.Duration) error {
	if m.GrantAllowanceFunc != nil {
		return m.GrantAllowanceFunc(userID, tokens, window)
	}
	return nil
}

func (m *MockDatabase) GetAllowance(userID string) (*db.TokenAllowance, error) {
	if m.GetAllowanceFunc != nil {
		return m.GetAllowanceFunc(userID)
	}
	return nil, nil
}

func (m *MockDatabase) ConsumeTokens(userID string, amount int) (bool, error) {
	if m.ConsumeTokensFunc != nil {
		return m.ConsumeTokensFunc(userID, amount)
	}
	return true, nil
}

// Usage record methods
func (m *MockDatabase) AddUsage(userID string, periodStart time.Time, tokens int) error {
	if m.AddUsageFunc != nil {
		return m.AddUsageFunc(userID, periodStart, tokens)
	}
	return nil
}

func (m *MockDatabase) GetUsage(userID string, periodStart time.Time) (*db.UsageRecord, error) {
	if m.GetUsageFunc != nil {
		return m.GetUsageFunc(userID, periodStart)
	}
	return nil, nil
}

// MockChatter is a mock implementation of llm.Chatter for testing
type MockChatter struct {
	ChatFunc       func(ctx context.Context, modelID string, messages []llm.Message, opts llm.RequestOptions) (*llm.ChatResult, error)
	ChatStreamFunc func(ctx context.Context, modelID string, messages []llm.Message, opts llm.RequestOptions) (<-chan llm.StreamChunk, error)
}

var _ llm.Chatter = (*MockChatter)(nil)

func (m *MockChatter) Chat(ctx context.Context, modelID string, messages []llm.Message, opts llm.RequestOptions) (*llm.ChatResult, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, modelID, messages, opts)
	}
	return nil, errors.New("not implemented")
}

func (m *MockChatter) ChatStream(ctx context.Context, modelID string, messages []llm.Message, opts llm.RequestOptions) (<-chan llm.StreamChunk, error) {
	if m.ChatStreamFunc != nil {
		return m.ChatStreamFunc(ctx, modelID, messages, opts)
	}
	return nil, errors.New("not implemented")
}

// MockCache is a mock implementation of cache.Cache for testing
type MockCache struct {
	GetFunc        func(key string) (*cache.CachedResponse, bool)
	SetWithTTLFunc func(key string, value *cache.CachedResponse, ttl time.Duration)
}

var _ cache.Cache = (*MockCache)(nil)

func (m *MockCache) Get(key string) (*cache.CachedResponse, bool) {
	if m.GetFunc != nil {
		return m.GetFunc(key)
	}
	return nil, false
}

func (m *MockCache) SetWithTTL(key string, value *cache.CachedResponse, ttl time.Duration) {
	if m.SetWithTTLFunc != nil {
		m.SetWithTTLFunc(key, value, ttl)
	}
}
