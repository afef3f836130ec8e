package model

import "time"

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// ConversationTurn lives only in the session's in-memory history and is
// dropped when the session expires.
type ConversationTurn struct {
	Role     TurnRole  `json:"role"`
	Content  string    `json:"content"`
	ImageKey string    `json:"image_key,omitempty"`
	Ts       time.Time `json:"ts"`
}
