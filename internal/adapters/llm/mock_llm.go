package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// MockLLM is an offline gateway for local development and tests.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) StartConversation(
	_ context.Context,
	_ string,
	history []domain.Turn,
) (domain.Conversation, error) {
	turns := make([]domain.Turn, len(history))
	copy(turns, history)
	return &mockConversation{turns: turns}, nil
}

type mockConversation struct {
	mu    sync.Mutex
	turns []domain.Turn
}

func (c *mockConversation) Send(_ context.Context, text string) (string, error) {
	var reply string
	if strings.Contains(text, intakeMarker) {
		reply = "1. Assess airway, breathing and circulation.\n" +
			"2. Monitor vital signs and keep the patient at rest.\n" +
			"3. Activate emergency services if signs worsen."
	} else {
		reply = fmt.Sprintf("Noted: %q. Keep monitoring and reassess if anything changes.", text)
	}

	c.mu.Lock()
	c.turns = append(c.turns,
		domain.Turn{Role: domain.TurnUser, Text: text},
		domain.Turn{Role: domain.TurnModel, Text: reply},
	)
	c.mu.Unlock()

	return reply, nil
}

func (c *mockConversation) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// intakeMarker is the heading every intake prompt starts with.
const intakeMarker = "PATIENT DATA:"
