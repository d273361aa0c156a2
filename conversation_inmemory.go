package chathistory

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryConversationStorage is an in-memory implementation of
// ConversationStorage, useful for tests and short-lived embeddings.
type InMemoryConversationStorage struct {
	conversations map[int64]*Conversation
	histories     map[int64][]Message
	byName        map[string]int64
	nextID        int64
	mu            sync.RWMutex
}

// NewInMemoryConversationStorage creates a new instance of InMemoryConversationStorage
func NewInMemoryConversationStorage() *InMemoryConversationStorage {
	return &InMemoryConversationStorage{
		conversations: make(map[int64]*Conversation),
		histories:     make(map[int64][]Message),
		byName:        make(map[string]int64),
		nextID:        1,
	}
}

// FindConversation returns the conversation with the given name, creating it
// with default settings when the name is unseen.
func (s *InMemoryConversationStorage) FindConversation(ctx context.Context, name string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[name]; ok {
		return copyConversation(s.conversations[id]), nil
	}

	conv := &Conversation{
		ID:        s.nextID,
		Name:      name,
		MaxTokens: DefaultMaxTokens,
		Model:     DefaultModel,
	}
	s.nextID++

	s.conversations[conv.ID] = conv
	s.histories[conv.ID] = []Message{}
	s.byName[name] = conv.ID

	return copyConversation(conv), nil
}

// GetConversation retrieves a conversation by its primary key.
func (s *InMemoryConversationStorage) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	return copyConversation(conv), nil
}

// SetPrompt sets or replaces the system prompt of an existing conversation.
func (s *InMemoryConversationStorage) SetPrompt(ctx context.Context, id int64, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, exists := s.conversations[id]
	if !exists {
		return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	conv.Prompt = &prompt
	return nil
}

// Prompt returns the conversation's system prompt and whether one is set.
func (s *InMemoryConversationStorage) Prompt(ctx context.Context, id int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return "", false, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	if conv.Prompt == nil {
		return "", false, nil
	}

	return *conv.Prompt, true, nil
}

// Model returns the conversation's model identifier.
func (s *InMemoryConversationStorage) Model(ctx context.Context, id int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return "", fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	return conv.Model, nil
}

// MaxTokens returns the conversation's max_tokens setting.
func (s *InMemoryConversationStorage) MaxTokens(ctx context.Context, id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return 0, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	return conv.MaxTokens, nil
}

// AddMessage appends a message to the conversation's history.
func (s *InMemoryConversationStorage) AddMessage(ctx context.Context, id int64, message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; !exists {
		return fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	s.histories[id] = append(s.histories[id], message)
	return nil
}

// History returns all messages of a conversation in insertion order.
func (s *InMemoryConversationStorage) History(ctx context.Context, id int64) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.conversations[id]; !exists {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrConversationNotFound)
	}

	messages := make([]Message, len(s.histories[id]))
	copy(messages, s.histories[id])

	return messages, nil
}

// Close is a no-op for the in-memory storage.
func (s *InMemoryConversationStorage) Close() error {
	return nil
}

func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	if conv.Prompt != nil {
		prompt := *conv.Prompt
		out.Prompt = &prompt
	}
	return &out
}
