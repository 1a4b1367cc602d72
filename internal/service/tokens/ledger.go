package tokens

import (
	"chat-gateway/internal/config"
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"time"

	"github.com/sirupsen/logrus"
)

// Ledger tracks the per-user rolling daily token allowance. Every mutation of
// a balance goes through its atomic grant/consume operations; no other
// component writes tokens_remaining directly.
//
// Failure policy: when the underlying store is unreachable, reads and
// consumes fail open (full balance / allowed) rather than blocking the user.
// Availability over strict quota enforcement, logged each time it happens.
type Ledger struct {
	db     db.Database
	cap    int
	window time.Duration
}

// NewLedger creates a token ledger with the configured daily cap and window
func NewLedger(database db.Database, quota config.QuotaConfig) *Ledger {
	return &Ledger{
		db:     database,
		cap:    quota.DailyTokenCap,
		window: quota.GrantWindow,
	}
}

// Cap returns the daily token cap
func (l *Ledger) Cap() int {
	return l.cap
}

// GrantIfNeeded issues a fresh allowance when none exists or the previous one
// has expired. Idempotent: a second call inside the grant window is a no-op.
func (l *Ledger) GrantIfNeeded(userID string) {
	if err := l.db.GrantAllowance(userID, l.cap, l.window); err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("Token grant failed, continuing without grant (fail-open policy)")
	}
}

// Remaining returns the tokens left in the current allowance. Returns the
// full cap when no allowance exists yet or the store is unreachable.
func (l *Ledger) Remaining(userID string) int {
	allowance, err := l.db.GetAllowance(userID)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", userID).Warn("Allowance read failed, treating balance as full (fail-open policy)")
		return l.cap
	}
	if allowance == nil {
		return l.cap
	}
	return allowance.TokensRemaining
}

// Consume atomically decrements the allowance by amount if enough tokens
// remain; returns false with no partial consumption otherwise. Safe under
// concurrent consumption for the same user: the check-then-decrement is
// atomic at the storage layer, not here.
func (l *Ledger) Consume(userID string, amount int) bool {
	if amount <= 0 {
		return true
	}
	ok, err := l.db.ConsumeTokens(userID, amount)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount,
		}).Warn("Token consume failed, allowing request (fail-open policy)")
		return true
	}
	return ok
}

// RecordUsage increments the per-user monthly aggregate usage counter,
// independent of the daily allowance
func (l *Ledger) RecordUsage(userID string, tokens int) error {
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return l.db.AddUsage(userID, periodStart, tokens)
}
