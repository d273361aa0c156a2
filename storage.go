package chathistory

import "context"

// ConversationStorage persists conversations with per-conversation model
// settings and a JSON message history (the conversation schema).
type ConversationStorage interface {
	// FindConversation returns the conversation with the given name, creating
	// it with default settings if it does not exist. Calling it twice with
	// the same name yields the same conversation.
	FindConversation(ctx context.Context, name string) (*Conversation, error)

	// GetConversation retrieves a conversation by its primary key.
	GetConversation(ctx context.Context, id int64) (*Conversation, error)

	// SetPrompt sets or replaces the conversation's system prompt.
	SetPrompt(ctx context.Context, id int64, prompt string) error

	// Prompt returns the conversation's system prompt and whether one is set.
	Prompt(ctx context.Context, id int64) (string, bool, error)

	// Model returns the conversation's model identifier.
	Model(ctx context.Context, id int64) (string, error)

	// MaxTokens returns the conversation's max_tokens setting.
	MaxTokens(ctx context.Context, id int64) (int, error)

	// AddMessage appends a message to the conversation's history.
	AddMessage(ctx context.Context, id int64, message Message) error

	// History returns all messages of a conversation in insertion order.
	History(ctx context.Context, id int64) ([]Message, error)

	// Close releases the underlying resources.
	Close() error
}

// TranscriptStorage persists minimal conversations with role/content history
// rows and named prompt templates (the transcript schema).
type TranscriptStorage interface {
	// FindConversation returns the id of the conversation with the given
	// name, creating it if it does not exist.
	FindConversation(ctx context.Context, name string) (int64, error)

	// AddTurn appends a role/content row to the conversation's history.
	AddTurn(ctx context.Context, conversation int64, role Role, content string) error

	// History returns all turns of a conversation in insertion order.
	History(ctx context.Context, conversation int64) ([]Turn, error)

	// SetTemplate stores a named template, replacing its content if the name
	// already exists.
	SetTemplate(ctx context.Context, name, content string) error

	// Template returns the content of a named template.
	Template(ctx context.Context, name string) (string, error)

	// Close releases the underlying resources.
	Close() error
}

// PersonalityStorage persists personalities (named, with a required prompt)
// and their role/content history rows (the personality schema).
type PersonalityStorage interface {
	// CreatePersonality stores a new personality. The name must be unused.
	CreatePersonality(ctx context.Context, name, prompt string) (*Personality, error)

	// FindPersonality retrieves a personality by name.
	FindPersonality(ctx context.Context, name string) (*Personality, error)

	// GetPersonality retrieves a personality by its primary key.
	GetPersonality(ctx context.Context, id int64) (*Personality, error)

	// AddTurn appends a role/content row to the personality's history.
	AddTurn(ctx context.Context, personality int64, role Role, content string) error

	// History returns all turns of a personality in insertion order.
	History(ctx context.Context, personality int64) ([]Turn, error)

	// Close releases the underlying resources.
	Close() error
}
