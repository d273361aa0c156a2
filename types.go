package chathistory

import (
	"encoding/json"
	"fmt"
)

// Defaults applied by the conversation schema when a row is created without
// explicit settings.
const (
	DefaultMaxTokens = 256
	DefaultModel     = "gpt-3.5-turbo"
)

// Role identifies the author of a history row. Roles are persisted as integer
// codes; only the codes below are valid.
type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
	RoleFunction
)

// ParseRole converts a stored role code back into a Role. Unknown codes are
// rejected rather than passed through.
func ParseRole(code int) (Role, error) {
	switch r := Role(code); r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return r, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidRole, code)
}

func (r Role) String() string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleFunction:
		return "function"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Message is a single conversation history entry. A message is either plain
// content or a function call; FnName and FnArgs are empty for content
// messages. Messages are persisted as a JSON document in the history table's
// message column.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	FnName  string `json:"fn_name,omitempty"`
	FnArgs  string `json:"fn_args,omitempty"`
}

// NewMessage creates a plain content message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NewFunctionCall creates a function-call message.
func NewFunctionCall(role Role, name, args string) Message {
	return Message{Role: role, FnName: name, FnArgs: args}
}

// IsFunctionCall reports whether the message records a function call rather
// than plain content.
func (m Message) IsFunctionCall() bool {
	return m.FnName != ""
}

// Text returns the printable form of the message, rendering function calls
// as name(args).
func (m Message) Text() string {
	if m.IsFunctionCall() {
		return fmt.Sprintf("%s(%s)", m.FnName, m.FnArgs)
	}
	return m.Content
}

// UnmarshalJSON validates the role code while decoding, so corrupt rows
// surface as errors instead of silently carrying an unknown role.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    int    `json:"role"`
		Content string `json:"content"`
		FnName  string `json:"fn_name"`
		FnArgs  string `json:"fn_args"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	role, err := ParseRole(raw.Role)
	if err != nil {
		return err
	}

	*m = Message{Role: role, Content: raw.Content, FnName: raw.FnName, FnArgs: raw.FnArgs}
	return nil
}

// Conversation is a parent row of the conversation schema, carrying the
// per-conversation model settings. Prompt is nil when no system prompt has
// been set.
type Conversation struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	MaxTokens int     `json:"max_tokens"`
	Model     string  `json:"model"`
	Prompt    *string `json:"prompt,omitempty"`
}

// Turn is a role/content history row of the transcript and personality
// schemas.
type Turn struct {
	ID      int64  `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Personality is a parent row of the personality schema. Prompt is required.
type Personality struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}
