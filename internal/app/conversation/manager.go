package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// ErrSuperseded is returned when Reset ran while a conversation was being opened.
// The opened conversation is dropped, never installed.
var ErrSuperseded = errors.New("conversation superseded")

// Manager owns the single live conversation with the assistant.
// The handle moves none -> live -> replaced -> reset; only Manager touches it.
type Manager struct {
	gateway domain.ConversationGateway
	metrics observability.Metrics

	mu     sync.Mutex
	handle domain.Conversation
	// epoch increments on Reset so an open started earlier cannot install its handle.
	epoch uint64
}

func NewManager(gateway domain.ConversationGateway, metrics observability.Metrics) *Manager {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Manager{
		gateway: gateway,
		metrics: metrics,
	}
}

// StartNew opens a fresh conversation for the patient and returns the
// assistant's initial recommendation.
func (m *Manager) StartNew(ctx context.Context, data domain.PatientData) (string, error) {
	log := observability.LoggerFromContext(ctx).With("role", data.Role.String())
	log.Info("starting conversation")

	epoch := m.currentEpoch()
	start := time.Now()
	conv, err := m.gateway.StartConversation(ctx, SystemInstruction, nil)
	if err != nil {
		m.metrics.RecordGatewayCall("start", err, time.Since(start))
		log.Error("failed to start conversation", "error", err)
		return "", fmt.Errorf("%w: start conversation: %v", domain.ErrAssistantUnavailable, err)
	}

	reply, err := conv.Send(ctx, BuildIntakePrompt(data))
	m.metrics.RecordGatewayCall("start", err, time.Since(start))
	if err != nil {
		log.Error("initial recommendation failed", "error", err)
		return "", fmt.Errorf("%w: initial recommendation: %v", domain.ErrAssistantUnavailable, err)
	}

	if !m.install(epoch, conv) {
		log.Warn("conversation reset while starting, dropping it")
		return "", ErrSuperseded
	}

	if reply == "" {
		log.Warn("assistant returned an empty recommendation")
		return FallbackRecommendation, nil
	}
	return reply, nil
}

// Continue sends a follow-up message on the live conversation.
func (m *Manager) Continue(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	conv := m.handle
	m.mu.Unlock()

	if conv == nil {
		return "", domain.ErrNoActiveConversation
	}

	start := time.Now()
	reply, err := conv.Send(ctx, text)
	m.metrics.RecordGatewayCall("continue", err, time.Since(start))
	if err != nil {
		observability.LoggerFromContext(ctx).Error("follow-up failed", "error", err)
		return "", fmt.Errorf("%w: continue: %v", domain.ErrAssistantUnavailable, err)
	}
	if reply == "" {
		return FallbackResponse, nil
	}
	return reply, nil
}

// ResumeFrom rebuilds the conversation of a stored case without asking for a reply.
// The intake prompt is not part of the stored chat, so it is prepended as the
// first user turn to keep the assistant's context identical to the original one.
func (m *Manager) ResumeFrom(ctx context.Context, c *domain.Case) error {
	history := append(
		[]domain.Turn{{Role: domain.TurnUser, Text: BuildIntakePrompt(c.PatientData)}},
		toTurns(c.Chat)...,
	)

	log := observability.LoggerFromContext(ctx).With("case_id", c.ID, "turns", len(history))

	epoch := m.currentEpoch()
	start := time.Now()
	conv, err := m.gateway.StartConversation(ctx, SystemInstruction, history)
	m.metrics.RecordGatewayCall("resume", err, time.Since(start))
	if err != nil {
		log.Error("failed to resume conversation", "error", err)
		return fmt.Errorf("%w: resume: %v", domain.ErrAssistantUnavailable, err)
	}

	if !m.install(epoch, conv) {
		log.Warn("conversation reset while resuming, dropping it")
		return ErrSuperseded
	}

	log.Info("conversation resumed")
	return nil
}

// Reset drops the live conversation, if any, and invalidates opens in flight.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.handle = nil
	m.epoch++
	m.mu.Unlock()
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

func (m *Manager) install(epoch uint64, conv domain.Conversation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return false
	}
	m.handle = conv
	return true
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// History returns the live conversation's turns, or nil.
func (m *Manager) History() []domain.Turn {
	m.mu.Lock()
	conv := m.handle
	m.mu.Unlock()
	if conv == nil {
		return nil
	}
	return conv.History()
}
