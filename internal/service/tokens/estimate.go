package tokens

import "chat-gateway/internal/service/llm"

// charsPerToken is the character-count approximation used when a provider
// does not report exact usage. Deterministic and monotonic in input length;
// exactness is not required.
const charsPerToken = 4

// EstimateText approximates the token count of a piece of text
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages approximates the input token count of a message history
func EstimateMessages(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateText(msg.Content)
	}
	return total
}
