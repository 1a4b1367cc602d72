package postgres

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UpsertMessageResponse writes or updates the alternate-answer record for a
// (message, model) pair
func (p *PostgresDB) UpsertMessageResponse(messageID, model, content string, tokensUsed int, isPrimary bool) (*db.MessageResponse, error) {
	conn := p.conn

	respID := uuid.New().String()
	var resp db.MessageResponse

	query := `
	INSERT INTO message_responses (id, message_id, model, content, tokens_used, is_primary)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (message_id, model) DO UPDATE
	SET content = EXCLUDED.content, tokens_used = EXCLUDED.tokens_used, is_primary = EXCLUDED.is_primary
	RETURNING id, message_id, model, content, tokens_used, is_primary, created_at
	`

	err := conn.QueryRow(query, respID, messageID, model, content, tokensUsed, isPrimary).
		Scan(&resp.ID, &resp.MessageID, &resp.Model, &resp.Content, &resp.TokensUsed, &resp.IsPrimary, &resp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error upserting message response: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"message_id":  messageID,
		"response_id": resp.ID,
		"model":       model,
		"is_primary":  isPrimary,
	}).Debug("Upserted message response")

	return &resp, nil
}

// GetMessageResponses retrieves all alternate answers for a message
func (p *PostgresDB) GetMessageResponses(messageID string) ([]db.MessageResponse, error) {
	conn := p.conn

	query := `
	SELECT id, message_id, model, content, tokens_used, is_primary, created_at
	FROM message_responses
	WHERE message_id = $1
	ORDER BY created_at ASC
	`

	rows, err := conn.Query(query, messageID)
	if err != nil {
		return nil, fmt.Errorf("error querying message responses: %w", err)
	}
	defer rows.Close()

	var responses []db.MessageResponse
	for rows.Next() {
		var resp db.MessageResponse
		if err := rows.Scan(&resp.ID, &resp.MessageID, &resp.Model, &resp.Content, &resp.TokensUsed, &resp.IsPrimary, &resp.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message response: %w", err)
		}
		responses = append(responses, resp)
	}

	return responses, nil
}

// ClearPrimaryResponses clears the primary flag on all responses for a message.
// Run before SetPrimaryResponse; a crash between the two leaves zero primaries,
// never two.
func (p *PostgresDB) ClearPrimaryResponses(messageID string) error {
	conn := p.conn

	query := `UPDATE message_responses SET is_primary = FALSE WHERE message_id = $1`
	if _, err := conn.Exec(query, messageID); err != nil {
		return fmt.Errorf("error clearing primary responses: %w", err)
	}

	return nil
}

// SetPrimaryResponse marks one response primary and returns it. The update is
// constrained to the given message, so a response id belonging to another
// message can never be flipped; that case surfaces as not found.
func (p *PostgresDB) SetPrimaryResponse(messageID, responseID string) (*db.MessageResponse, error) {
	conn := p.conn

	var resp db.MessageResponse
	query := `
	UPDATE message_responses SET is_primary = TRUE
	WHERE id = $1 AND message_id = $2
	RETURNING id, message_id, model, content, tokens_used, is_primary, created_at
	`

	err := conn.QueryRow(query, responseID, messageID).
		Scan(&resp.ID, &resp.MessageID, &resp.Model, &resp.Content, &resp.TokensUsed, &resp.IsPrimary, &resp.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("response not found")
		}
		return nil, fmt.Errorf("error setting primary response: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"response_id": responseID, "message_id": resp.MessageID}).Info("Set primary response")
	return &resp, nil
}
