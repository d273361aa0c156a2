package chathistory

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation id or name does
	// not exist in the store.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrPersonalityNotFound is returned when a personality id or name does
	// not exist in the store.
	ErrPersonalityNotFound = errors.New("personality not found")

	// ErrTemplateNotFound is returned when no template with the given name
	// has been stored.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDuplicateName is returned when creating a parent row whose name is
	// already taken.
	ErrDuplicateName = errors.New("name already exists")

	// ErrInvalidRole is returned when a role code outside the known set is
	// parsed or read back from storage.
	ErrInvalidRole = errors.New("invalid role code")
)
