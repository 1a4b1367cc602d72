package db

import "time"

// User represents a user in the database. Accounts are provisioned lazily on
// the first authenticated request carrying an unknown external identity.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Thread represents a conversation thread owned by a user
type Thread struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a message in a thread. Assistant messages may exist
// transiently as empty placeholder rows written before streaming completes.
type Message struct {
	ID        string
	ThreadID  string
	Role      string
	Content   string
	CreatedAt time.Time
}

// MessageResponse is one alternate model answer for a logical assistant turn.
// At most one response per message is primary at any time.
type MessageResponse struct {
	ID         string
	MessageID  string
	Model      string
	Content    string
	TokensUsed int
	IsPrimary  bool
	CreatedAt  time.Time
}

// TokenAllowance is the per-user rolling daily token budget
type TokenAllowance struct {
	UserID          string
	GrantedAt       time.Time
	ExpiresAt       time.Time
	TokensRemaining int
}

// UsageRecord is the per-user per-period aggregate token counter,
// separate from the daily allowance
type UsageRecord struct {
	UserID      string
	PeriodStart time.Time
	TokensUsed  int
}
