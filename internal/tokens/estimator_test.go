package tokens

import (
	"errors"
	"strings"
	"testing"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty text", text: "", want: 0},
		{name: "single char", text: "a", want: 1},
		{name: "exactly four chars", text: "abcd", want: 2},
		{name: "seven chars", text: "abcdefg", want: 2},
		{name: "eight chars", text: "abcdefgh", want: 3},
		{name: "forty chars", text: strings.Repeat("x", 40), want: 11},
		{name: "4000 chars", text: strings.Repeat("x", 4000), want: 1001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		want     int
	}{
		{
			name:     "empty conversation keeps flat overhead",
			messages: []models.Message{},
			want:     3,
		},
		{
			name: "single message",
			// content 16 chars -> 5 tokens, +4 message overhead, +3 flat
			messages: []models.Message{
				{Role: models.RoleUser, Content: "sixteen chars..."},
			},
			want: 12,
		},
		{
			name: "named message adds name estimate plus one",
			// content "hi" -> 1, +4; name "bob" -> 1, +1; +3 flat
			messages: []models.Message{
				{Role: models.RoleUser, Content: "hi", Name: "bob"},
			},
			want: 10,
		},
		{
			name: "multi-turn conversation",
			// 1+4 + 1+4 + 3
			messages: []models.Message{
				{Role: models.RoleSystem, Content: "hi"},
				{Role: models.RoleUser, Content: "yo"},
			},
			want: 13,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EstimateMessages(tt.messages)
			if err != nil {
				t.Fatalf("EstimateMessages() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EstimateMessages() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimateMessagesNilInput(t *testing.T) {
	_, err := EstimateMessages(nil)
	if !errors.Is(err, ErrTokenEstimation) {
		t.Errorf("EstimateMessages(nil) error = %v, want ErrTokenEstimation", err)
	}
}

func TestEstimateMessagesStableUnderRepetition(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleSystem, Content: "You are a helpful assistant."},
		{Role: models.RoleUser, Content: "Summarize the attached report."},
	}

	first, err := EstimateMessages(messages)
	if err != nil {
		t.Fatalf("EstimateMessages() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := EstimateMessages(messages)
		if err != nil {
			t.Fatalf("EstimateMessages() error = %v", err)
		}
		if again != first {
			t.Fatalf("EstimateMessages() unstable: %d then %d", first, again)
		}
	}
}
