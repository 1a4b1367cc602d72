package db

import "time"

// Database defines the interface for all database operations.
// This allows for easier testing through mocking and decouples the services
// from the specific database implementation.
type Database interface {
	// Users
	GetUserByUsername(username string) (*User, error)
	CreateUser(username, email, password string) (*User, error)
	GetOrCreateUser(externalID string) (*User, error)

	// Threads
	EnsureThread(threadID, userID, title string) error
	GetThread(threadID string) (*Thread, error)
	GetThreadsByUser(userID string) ([]Thread, error)
	DeleteThread(threadID string) error
	SetThreadTitle(threadID, title, ifCurrentTitle string) (bool, error)

	// Messages
	AddMessage(threadID, role, content string) (*Message, error)
	GetThreadMessages(threadID string) ([]Message, error)
	GetMessage(messageID string) (*Message, error)
	FindRecentMessage(threadID, role, content string) (*Message, error)
	FindPlaceholderAssistantMessage(threadID string, maxContentLen int) (*Message, error)
	UpdateMessageContent(messageID, content string) error
	CountThreadMessages(threadID string) (int, error)

	// Message responses
	UpsertMessageResponse(messageID, model, content string, tokensUsed int, isPrimary bool) (*MessageResponse, error)
	GetMessageResponses(messageID string) ([]MessageResponse, error)
	ClearPrimaryResponses(messageID string) error
	SetPrimaryResponse(messageID, responseID string) (*MessageResponse, error)

	// Token allowances
	GrantAllowance(userID string, tokens int, window time.Duration) error
	GetAllowance(userID string) (*TokenAllowance, error)
	ConsumeTokens(userID string, amount int) (bool, error)

	// Usage records
	AddUsage(userID string, periodStart time.Time, tokens int) error
	GetUsage(userID string, periodStart time.Time) (*UsageRecord, error)
}
