package domain

import "context"

// TurnRole is the conversation-level author of a turn, as the AI service sees it.
type TurnRole string

const (
	TurnUser  TurnRole = "user"
	TurnModel TurnRole = "model"
)

// Turn is one entry of a conversation history handed to the gateway.
type Turn struct {
	Role TurnRole
	Text string
}

// ConversationGateway defines how the core talks to an AI chat service.
type ConversationGateway interface {
	// StartConversation opens a conversation with the given system instruction,
	// seeded with history (may be empty). It does not request a reply.
	StartConversation(ctx context.Context, systemInstruction string, history []Turn) (Conversation, error)
}

// Conversation is a live, stateful exchange. Send returns "" when the service gave no text.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
	History() []Turn
}

// CaseStore defines case persistence. Put replaces the stored record wholesale.
type CaseStore interface {
	AddCase(ctx context.Context, c *Case) (CaseID, error)
	PutCase(ctx context.Context, c *Case) (CaseID, error)
	GetCase(ctx context.Context, id CaseID) (*Case, error)
	ListCases(ctx context.Context) ([]*Case, error)
}

// PreferenceStore is a small keyed store for device-local settings.
type PreferenceStore interface {
	GetPreference(ctx context.Context, key string) (string, bool, error)
	SetPreference(ctx context.Context, key, value string) error
	DeletePreferences(ctx context.Context, keys ...string) error
}

const (
	PrefActivationExpiry = "activation-expiry"
	PrefUserRole         = "user-role"
	PrefLastActiveCase   = "last-active-case-id"
)
