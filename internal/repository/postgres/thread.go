package postgres

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// EnsureThread creates a thread if it does not exist yet. The upsert is
// tolerant of races where two requests attempt to create the same thread.
func (p *PostgresDB) EnsureThread(threadID, userID, title string) error {
	conn := p.conn

	query := `
	INSERT INTO threads (id, user_id, title)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO NOTHING
	`

	result, err := conn.Exec(query, threadID, userID, title)
	if err != nil {
		return fmt.Errorf("error ensuring thread: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		logger.Log.WithFields(logrus.Fields{"thread_id": threadID, "user_id": userID}).Info("Created new thread")
	}
	return nil
}

// GetThread retrieves a specific thread
func (p *PostgresDB) GetThread(threadID string) (*db.Thread, error) {
	conn := p.conn

	var thread db.Thread
	query := `SELECT id, user_id, title, created_at, updated_at FROM threads WHERE id = $1`

	err := conn.QueryRow(query, threadID).Scan(&thread.ID, &thread.UserID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("thread not found")
		}
		return nil, fmt.Errorf("error retrieving thread: %w", err)
	}

	return &thread, nil
}

// GetThreadsByUser retrieves all threads for a user, most recently updated first
func (p *PostgresDB) GetThreadsByUser(userID string) ([]db.Thread, error) {
	conn := p.conn

	query := `
	SELECT id, user_id, title, created_at, updated_at
	FROM threads
	WHERE user_id = $1
	ORDER BY updated_at DESC
	`

	rows, err := conn.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying threads: %w", err)
	}
	defer rows.Close()

	var threads []db.Thread
	for rows.Next() {
		var thread db.Thread
		if err := rows.Scan(&thread.ID, &thread.UserID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning thread: %w", err)
		}
		threads = append(threads, thread)
	}

	return threads, nil
}

// DeleteThread deletes a thread and all its messages
func (p *PostgresDB) DeleteThread(threadID string) error {
	conn := p.conn

	query := `DELETE FROM threads WHERE id = $1`
	if _, err := conn.Exec(query, threadID); err != nil {
		return fmt.Errorf("error deleting thread: %w", err)
	}

	logger.Log.WithField("thread_id", threadID).Info("Deleted thread")
	return nil
}

// SetThreadTitle rewrites a thread title only while it still carries the
// expected current title, so a user-renamed thread is never clobbered.
// Returns true when the title was updated.
func (p *PostgresDB) SetThreadTitle(threadID, title, ifCurrentTitle string) (bool, error) {
	conn := p.conn

	query := `UPDATE threads SET title = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND title = $3`
	result, err := conn.Exec(query, threadID, title, ifCurrentTitle)
	if err != nil {
		return false, fmt.Errorf("error updating thread title: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error updating thread title: %w", err)
	}

	return rows > 0, nil
}
