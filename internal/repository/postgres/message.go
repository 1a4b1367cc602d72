package postgres

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AddMessage adds a message to a thread
func (p *PostgresDB) AddMessage(threadID, role, content string) (*db.Message, error) {
	conn := p.conn

	msgID := uuid.New().String()
	var msg db.Message

	query := `
	INSERT INTO messages (id, thread_id, role, content)
	VALUES ($1, $2, $3, $4)
	RETURNING id, thread_id, role, content, created_at
	`

	err := conn.QueryRow(query, msgID, threadID, role, content).
		Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error adding message: %w", err)
	}

	// Bump thread updated_at so listings sort by recent activity
	updateQuery := `UPDATE threads SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := conn.Exec(updateQuery, threadID); err != nil {
		logger.Log.WithError(err).Warn("Error updating thread timestamp")
	}

	logger.Log.WithFields(logrus.Fields{
		"thread_id":     threadID,
		"role":          role,
		"content_chars": len(content),
	}).Debug("Added message to thread")

	return &msg, nil
}

// GetThreadMessages retrieves all messages from a thread in conversation order
func (p *PostgresDB) GetThreadMessages(threadID string) ([]db.Message, error) {
	conn := p.conn

	query := `
	SELECT id, thread_id, role, content, created_at
	FROM messages
	WHERE thread_id = $1
	ORDER BY created_at ASC
	`

	rows, err := conn.Query(query, threadID)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	defer rows.Close()

	var messages []db.Message
	for rows.Next() {
		var msg db.Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// GetMessage retrieves a single message by ID
func (p *PostgresDB) GetMessage(messageID string) (*db.Message, error) {
	conn := p.conn

	var msg db.Message
	query := `SELECT id, thread_id, role, content, created_at FROM messages WHERE id = $1`

	err := conn.QueryRow(query, messageID).Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message not found")
		}
		return nil, fmt.Errorf("error retrieving message: %w", err)
	}

	return &msg, nil
}

// FindRecentMessage finds the newest message in a thread with the exact
// role and content, covering callers that already optimistically wrote it
func (p *PostgresDB) FindRecentMessage(threadID, role, content string) (*db.Message, error) {
	conn := p.conn

	var msg db.Message
	query := `
	SELECT id, thread_id, role, content, created_at
	FROM messages
	WHERE thread_id = $1 AND role = $2 AND content = $3
	ORDER BY created_at DESC
	LIMIT 1
	`

	err := conn.QueryRow(query, threadID, role, content).
		Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding message: %w", err)
	}

	return &msg, nil
}

// FindPlaceholderAssistantMessage finds the newest assistant message whose
// content is empty or very short, a streaming placeholder awaiting its
// final content
func (p *PostgresDB) FindPlaceholderAssistantMessage(threadID string, maxContentLen int) (*db.Message, error) {
	conn := p.conn

	var msg db.Message
	query := `
	SELECT id, thread_id, role, content, created_at
	FROM messages
	WHERE thread_id = $1 AND role = 'assistant' AND char_length(content) <= $2
	ORDER BY created_at DESC
	LIMIT 1
	`

	err := conn.QueryRow(query, threadID, maxContentLen).
		Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding placeholder message: %w", err)
	}

	return &msg, nil
}

// UpdateMessageContent rewrites a message's content in place
func (p *PostgresDB) UpdateMessageContent(messageID, content string) error {
	conn := p.conn

	query := `UPDATE messages SET content = $2 WHERE id = $1`
	if _, err := conn.Exec(query, messageID, content); err != nil {
		return fmt.Errorf("error updating message content: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{"message_id": messageID, "content_chars": len(content)}).Debug("Updated message content")
	return nil
}

// CountThreadMessages returns the number of messages in a thread
func (p *PostgresDB) CountThreadMessages(threadID string) (int, error) {
	conn := p.conn

	var count int
	query := `SELECT COUNT(*) FROM messages WHERE thread_id = $1`
	if err := conn.QueryRow(query, threadID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting messages: %w", err)
	}

	return count, nil
}
