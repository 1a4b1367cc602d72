package postgres

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// GrantAllowance creates or refreshes the daily token allowance for a user.
// The upsert is a no-op while an unexpired allowance exists, so concurrent
// calls for the same user cannot double-grant.
func (p *PostgresDB) GrantAllowance(userID string, tokens int, window time.Duration) error {
	conn := p.conn

	query := `
	INSERT INTO token_allowances (user_id, granted_at, expires_at, tokens_remaining)
	VALUES ($1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP + $2 * INTERVAL '1 second', $3)
	ON CONFLICT (user_id) DO UPDATE
	SET granted_at = EXCLUDED.granted_at,
	    expires_at = EXCLUDED.expires_at,
	    tokens_remaining = EXCLUDED.tokens_remaining
	WHERE token_allowances.expires_at <= CURRENT_TIMESTAMP
	`

	result, err := conn.Exec(query, userID, int(window.Seconds()), tokens)
	if err != nil {
		return fmt.Errorf("error granting allowance: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		logger.Log.WithFields(logrus.Fields{"user_id": userID, "tokens": tokens}).Info("Granted daily token allowance")
	}
	return nil
}

// GetAllowance retrieves the current unexpired allowance for a user,
// nil if none exists
func (p *PostgresDB) GetAllowance(userID string) (*db.TokenAllowance, error) {
	conn := p.conn

	var allowance db.TokenAllowance
	query := `
	SELECT user_id, granted_at, expires_at, tokens_remaining
	FROM token_allowances
	WHERE user_id = $1 AND expires_at > CURRENT_TIMESTAMP
	`

	err := conn.QueryRow(query, userID).
		Scan(&allowance.UserID, &allowance.GrantedAt, &allowance.ExpiresAt, &allowance.TokensRemaining)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving allowance: %w", err)
	}

	return &allowance, nil
}

// ConsumeTokens atomically decrements the allowance if enough tokens remain.
// The balance guard lives in the WHERE clause, so two concurrent requests for
// the same user cannot both pass a stale balance check. Returns false with no
// partial consumption when the balance is insufficient.
func (p *PostgresDB) ConsumeTokens(userID string, amount int) (bool, error) {
	conn := p.conn

	query := `
	UPDATE token_allowances
	SET tokens_remaining = tokens_remaining - $2
	WHERE user_id = $1 AND expires_at > CURRENT_TIMESTAMP AND tokens_remaining >= $2
	`

	result, err := conn.Exec(query, userID, amount)
	if err != nil {
		return false, fmt.Errorf("error consuming tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error consuming tokens: %w", err)
	}

	return rows > 0, nil
}
