package chathistory

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a new span with the given name and options.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return trace.SpanFromContext(ctx).TracerProvider().
		Tracer("github.com/shaharia-lab/chathistory").
		Start(ctx, name, opts...)
}

// TracingConversationStorage implements the decorator pattern for tracing
type TracingConversationStorage struct {
	storage ConversationStorage
}

// NewTracingConversationStorage creates a new tracing decorator for any ConversationStorage
func NewTracingConversationStorage(storage ConversationStorage) *TracingConversationStorage {
	return &TracingConversationStorage{
		storage: storage,
	}
}

// FindConversation implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) FindConversation(ctx context.Context, name string) (*Conversation, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.FindConversation")
	defer span.End()

	startTime := time.Now()

	conv, err := t.storage.FindConversation(ctx, name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("conversation_name", name),
		attribute.Int64("conversation_id", conv.ID),
		attribute.Float64("completion_time", time.Since(startTime).Seconds()),
	)

	return conv, nil
}

// GetConversation implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.GetConversation")
	defer span.End()

	conv, err := t.storage.GetConversation(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("conversation_id", id))
	return conv, nil
}

// SetPrompt implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) SetPrompt(ctx context.Context, id int64, prompt string) error {
	ctx, span := StartSpan(ctx, "ConversationStorage.SetPrompt")
	defer span.End()

	if err := t.storage.SetPrompt(ctx, id, prompt); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.Int("prompt_length", len(prompt)),
	)
	return nil
}

// Prompt implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) Prompt(ctx context.Context, id int64) (string, bool, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.Prompt")
	defer span.End()

	prompt, ok, err := t.storage.Prompt(ctx, id)
	if err != nil {
		span.RecordError(err)
		return "", false, err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.Bool("prompt_set", ok),
	)
	return prompt, ok, nil
}

// Model implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) Model(ctx context.Context, id int64) (string, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.Model")
	defer span.End()

	model, err := t.storage.Model(ctx, id)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.String("model", model),
	)
	return model, nil
}

// MaxTokens implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) MaxTokens(ctx context.Context, id int64) (int, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.MaxTokens")
	defer span.End()

	maxTokens, err := t.storage.MaxTokens(ctx, id)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.Int("max_tokens", maxTokens),
	)
	return maxTokens, nil
}

// AddMessage implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) AddMessage(ctx context.Context, id int64, message Message) error {
	ctx, span := StartSpan(ctx, "ConversationStorage.AddMessage")
	defer span.End()

	startTime := time.Now()

	if err := t.storage.AddMessage(ctx, id, message); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.String("role", message.Role.String()),
		attribute.Bool("function_call", message.IsFunctionCall()),
		attribute.Float64("completion_time", time.Since(startTime).Seconds()),
	)
	return nil
}

// History implements ConversationStorage interface with added tracing
func (t *TracingConversationStorage) History(ctx context.Context, id int64) ([]Message, error) {
	ctx, span := StartSpan(ctx, "ConversationStorage.History")
	defer span.End()

	startTime := time.Now()

	messages, err := t.storage.History(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("conversation_id", id),
		attribute.Int("message_count", len(messages)),
		attribute.Float64("completion_time", time.Since(startTime).Seconds()),
	)
	return messages, nil
}

// Close implements ConversationStorage interface
func (t *TracingConversationStorage) Close() error {
	return t.storage.Close()
}
