package postgres

import (
	"chat-gateway/internal/repository/db"
	"database/sql"
	"fmt"
	"time"
)

// AddUsage increments the per-user aggregate usage counter for a period,
// creating the row on first use
func (p *PostgresDB) AddUsage(userID string, periodStart time.Time, tokens int) error {
	conn := p.conn

	query := `
	INSERT INTO usage_records (user_id, period_start, tokens_used)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, period_start) DO UPDATE
	SET tokens_used = usage_records.tokens_used + EXCLUDED.tokens_used
	`

	if _, err := conn.Exec(query, userID, periodStart, tokens); err != nil {
		return fmt.Errorf("error recording usage: %w", err)
	}

	return nil
}

// GetUsage retrieves the aggregate usage counter for a user and period,
// nil if no usage was recorded
func (p *PostgresDB) GetUsage(userID string, periodStart time.Time) (*db.UsageRecord, error) {
	conn := p.conn

	var record db.UsageRecord
	query := `
	SELECT user_id, period_start, tokens_used
	FROM usage_records
	WHERE user_id = $1 AND period_start = $2
	`

	err := conn.QueryRow(query, userID, periodStart).
		Scan(&record.UserID, &record.PeriodStart, &record.TokensUsed)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving usage: %w", err)
	}

	return &record, nil
}
