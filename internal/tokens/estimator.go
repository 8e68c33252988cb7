// Package tokens estimates token counts for completion requests without
// calling a real tokenizer. The heuristic (roughly four characters per
// token) intentionally overestimates a little so context-window checks
// stay on the safe side.
package tokens

import (
	"errors"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

// ErrTokenEstimation reports invalid input to an estimation function.
var ErrTokenEstimation = errors.New("token estimation failed")

const (
	charsPerToken = 4

	// Chat-format framing costs, applied per message and per conversation.
	messageOverhead      = 4
	nameOverhead         = 1
	conversationOverhead = 3
)

// Estimate returns the approximate token count of a piece of text.
// Empty text estimates to zero.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return len(text)/charsPerToken + 1
}

// EstimateMessages returns the approximate prompt token count of a full
// conversation, including per-message and per-conversation framing
// overhead. A nil message slice is invalid input.
func EstimateMessages(messages []models.Message) (int, error) {
	if messages == nil {
		return 0, ErrTokenEstimation
	}

	total := 0
	for _, m := range messages {
		total += Estimate(m.Content) + messageOverhead
		if m.Name != "" {
			total += Estimate(m.Name) + nameOverhead
		}
	}
	return total + conversationOverhead, nil
}
