package conversation

import (
	"chat-gateway/internal/logger"
	"chat-gateway/internal/repository/db"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// PlaceholderTitle is the title a thread carries until its first exchange
// derives a real one
const PlaceholderTitle = "New conversation"

// placeholderMaxLen is the longest assistant message still treated as a
// streaming placeholder awaiting its final content
const placeholderMaxLen = 4

// titleMaxLen bounds the derived auto-title
const titleMaxLen = 40

// conversational openers stripped before deriving a title
var titlePrefixes = []string{
	"can you please",
	"could you please",
	"can you",
	"could you",
	"would you",
	"please",
	"how do i",
	"how do you",
	"how can i",
	"what is",
	"what are",
	"tell me",
	"help me",
	"i want to",
	"i need to",
}

// SaveResult carries the ids of the persisted exchange. Empty ids signal a
// degraded save: the response shown to the caller is preserved regardless.
type SaveResult struct {
	UserMessageID      string
	AssistantMessageID string
}

// Service persists chat exchanges into the thread/message model. Every
// failure inside it is caught and logged rather than propagated, consistent
// with the dispatcher's policy of never undoing a response already shown.
type Service struct {
	db db.Database
}

// NewService creates a conversation store adapter
func NewService(database db.Database) *Service {
	return &Service{db: database}
}

// EnsureThread creates the thread if absent. Idempotent and tolerant of two
// requests racing to create the same thread.
func (s *Service) EnsureThread(threadID, userID string) error {
	return s.db.EnsureThread(threadID, userID, PlaceholderTitle)
}

// SaveExchange persists a user/assistant exchange into a thread, in
// conversation order. The user message is deduplicated against an
// optimistically written copy; the assistant message updates a streaming
// placeholder in place when one exists instead of inserting a second row.
func (s *Service) SaveExchange(threadID, userMessageText, assistantText, modelID string, tokensUsed int) SaveResult {
	var result SaveResult

	userMsgID, err := s.saveUserMessage(threadID, userMessageText)
	if err != nil {
		logger.Log.WithError(err).WithField("thread_id", threadID).Error("Failed to save user message")
		return result
	}
	result.UserMessageID = userMsgID

	assistantMsgID, err := s.saveAssistantMessage(threadID, assistantText)
	if err != nil {
		logger.Log.WithError(err).WithField("thread_id", threadID).Error("Failed to save assistant message")
		return result
	}
	result.AssistantMessageID = assistantMsgID

	if modelID != "" {
		if _, err := s.db.UpsertMessageResponse(assistantMsgID, modelID, assistantText, tokensUsed, true); err != nil {
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"message_id": assistantMsgID,
				"model":      modelID,
			}).Error("Failed to save message response")
		}
	}

	s.maybeDeriveTitle(threadID, userMessageText)

	return result
}

func (s *Service) saveUserMessage(threadID, content string) (string, error) {
	// Covers callers that already optimistically wrote the user message
	if existing, err := s.db.FindRecentMessage(threadID, "user", content); err == nil && existing != nil {
		logger.Log.WithField("message_id", existing.ID).Debug("Reusing optimistically written user message")
		return existing.ID, nil
	}

	msg, err := s.db.AddMessage(threadID, "user", content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *Service) saveAssistantMessage(threadID, content string) (string, error) {
	// A streaming UI may have written a blank assistant row before the
	// stream completed; update it in place instead of duplicating
	if placeholder, err := s.db.FindPlaceholderAssistantMessage(threadID, placeholderMaxLen); err == nil && placeholder != nil {
		if err := s.db.UpdateMessageContent(placeholder.ID, content); err != nil {
			return "", err
		}
		logger.Log.WithField("message_id", placeholder.ID).Debug("Updated placeholder assistant message in place")
		return placeholder.ID, nil
	}

	msg, err := s.db.AddMessage(threadID, "assistant", content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// maybeDeriveTitle rewrites the placeholder title from the first user
// message while the thread is still young. The conditional update leaves a
// user-renamed thread untouched.
func (s *Service) maybeDeriveTitle(threadID, firstUserMessage string) {
	count, err := s.db.CountThreadMessages(threadID)
	if err != nil {
		logger.Log.WithError(err).WithField("thread_id", threadID).Warn("Failed to count thread messages for titling")
		return
	}
	if count > 2 {
		return
	}

	title := DeriveTitle(firstUserMessage)
	updated, err := s.db.SetThreadTitle(threadID, title, PlaceholderTitle)
	if err != nil {
		logger.Log.WithError(err).WithField("thread_id", threadID).Warn("Failed to set thread title")
		return
	}
	if updated {
		logger.Log.WithFields(logrus.Fields{"thread_id": threadID, "title": title}).Debug("Derived thread title")
	}
}

// DeriveTitle produces a short thread title from the first user message:
// conversational openers stripped, first letter capitalized, truncated to
// 40 characters. Falls back to the placeholder when too little remains.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)

	lower := strings.ToLower(title)
	for _, prefix := range titlePrefixes {
		if strings.HasPrefix(lower, prefix+" ") {
			title = strings.TrimSpace(title[len(prefix):])
			break
		}
	}

	title = strings.TrimLeft(title, " ,.:;!?")
	if len([]rune(title)) < 3 {
		return PlaceholderTitle
	}

	runes := []rune(title)
	runes[0] = unicode.ToUpper(runes[0])
	if len(runes) > titleMaxLen {
		runes = runes[:titleMaxLen]
		title = strings.TrimSpace(string(runes)) + "…"
	} else {
		title = string(runes)
	}

	return title
}

// SwitchPrimaryResponse makes one alternate answer the message's primary and
// copies its content onto the parent message. Membership is verified before
// anything is written: a response id from another message changes nothing.
// The clear-all runs before the set-one so a crash in between leaves zero
// primaries, never two.
func (s *Service) SwitchPrimaryResponse(messageID, responseID string) error {
	responses, err := s.db.GetMessageResponses(messageID)
	if err != nil {
		return fmt.Errorf("failed to look up message responses: %w", err)
	}
	found := false
	for _, r := range responses {
		if r.ID == responseID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("response does not belong to message")
	}

	if err := s.db.ClearPrimaryResponses(messageID); err != nil {
		return fmt.Errorf("failed to clear primary responses: %w", err)
	}

	resp, err := s.db.SetPrimaryResponse(messageID, responseID)
	if err != nil {
		return fmt.Errorf("failed to set primary response: %w", err)
	}

	if err := s.db.UpdateMessageContent(messageID, resp.Content); err != nil {
		return fmt.Errorf("failed to copy primary content onto message: %w", err)
	}

	return nil
}

// GetUserThreads retrieves all threads for a user
func (s *Service) GetUserThreads(userID string) ([]db.Thread, error) {
	threads, err := s.db.GetThreadsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve threads: %w", err)
	}
	return threads, nil
}

// GetThreadMessages retrieves all messages from a thread the user owns
func (s *Service) GetThreadMessages(threadID, userID string) ([]db.Message, error) {
	thread, err := s.db.GetThread(threadID)
	if err != nil {
		return nil, fmt.Errorf("thread not found: %w", err)
	}
	if thread.UserID != userID {
		return nil, fmt.Errorf("unauthorized: user does not own this thread")
	}

	messages, err := s.db.GetThreadMessages(threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve messages: %w", err)
	}
	return messages, nil
}

// DeleteThread deletes a thread if the user owns it
func (s *Service) DeleteThread(threadID, userID string) error {
	thread, err := s.db.GetThread(threadID)
	if err != nil {
		return fmt.Errorf("thread not found: %w", err)
	}
	if thread.UserID != userID {
		return fmt.Errorf("unauthorized: user does not own this thread")
	}

	if err := s.db.DeleteThread(threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// GetMessageResponses retrieves the alternate answers for a message the user owns
func (s *Service) GetMessageResponses(messageID, userID string) ([]db.MessageResponse, error) {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, fmt.Errorf("message not found: %w", err)
	}
	thread, err := s.db.GetThread(msg.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("thread not found: %w", err)
	}
	if thread.UserID != userID {
		return nil, fmt.Errorf("unauthorized: user does not own this thread")
	}

	return s.db.GetMessageResponses(messageID)
}

// VerifyMessageOwner checks that a message belongs to a thread the user owns
func (s *Service) VerifyMessageOwner(messageID, userID string) error {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return fmt.Errorf("message not found: %w", err)
	}
	thread, err := s.db.GetThread(msg.ThreadID)
	if err != nil {
		return fmt.Errorf("thread not found: %w", err)
	}
	if thread.UserID != userID {
		return fmt.Errorf("unauthorized: user does not own this thread")
	}
	return nil
}
