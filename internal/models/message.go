package models

import "fmt"

// Message roles accepted by the completion pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation sent to a provider.
type Message struct {
	Role    string `db:"role" json:"role"`
	Content string `db:"content" json:"content"`
	Name    string `db:"name" json:"name,omitempty"`
}

// Validate checks that the message carries a known role and some content.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("message content must not be empty")
	}
	return nil
}
