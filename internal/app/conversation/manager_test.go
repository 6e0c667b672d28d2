package conversation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/suma-triage/internal/adapters/llm"
	"github.com/PabloGalante/suma-triage/internal/app/conversation"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

// recordingGateway captures what the manager hands to the AI service.
type recordingGateway struct {
	system   string
	history  []domain.Turn
	reply    string
	startErr error
	sendErr  error
	sent     []string
}

func (g *recordingGateway) StartConversation(_ context.Context, sys string, history []domain.Turn) (domain.Conversation, error) {
	if g.startErr != nil {
		return nil, g.startErr
	}
	g.system = sys
	g.history = history
	return &recordingConversation{g: g}, nil
}

type recordingConversation struct{ g *recordingGateway }

func (c *recordingConversation) Send(_ context.Context, text string) (string, error) {
	c.g.sent = append(c.g.sent, text)
	if c.g.sendErr != nil {
		return "", c.g.sendErr
	}
	return c.g.reply, nil
}

func (c *recordingConversation) History() []domain.Turn { return c.g.history }

func patient() domain.PatientData {
	return domain.PatientData{
		Role:        domain.RoleParamedic,
		Age:         "58",
		Sex:         "M",
		Background:  "hypertension",
		Medications: "losartan",
		Symptoms:    "chest pain, sweating",
	}
}

func TestStartNewSendsIntakePrompt(t *testing.T) {
	gw := &recordingGateway{reply: "1. Call for help"}
	m := conversation.NewManager(gw, nil)

	reply, err := m.StartNew(context.Background(), patient())
	require.NoError(t, err)
	assert.Equal(t, "1. Call for help", reply)
	assert.True(t, m.Active())

	assert.Equal(t, conversation.SystemInstruction, gw.system)
	assert.Empty(t, gw.history)
	require.Len(t, gw.sent, 1)
	prompt := gw.sent[0]
	for _, want := range []string{"PATIENT DATA:", "Paramedic", "58", "M", "hypertension", "losartan", "chest pain, sweating"} {
		assert.Contains(t, prompt, want)
	}
}

func TestStartNewEmptyReplyUsesFallback(t *testing.T) {
	m := conversation.NewManager(&recordingGateway{}, nil)

	reply, err := m.StartNew(context.Background(), patient())
	require.NoError(t, err)
	assert.Equal(t, conversation.FallbackRecommendation, reply)
}

func TestStartNewFailureIsAssistantUnavailable(t *testing.T) {
	m := conversation.NewManager(&recordingGateway{sendErr: errors.New("quota")}, nil)

	_, err := m.StartNew(context.Background(), patient())
	require.ErrorIs(t, err, domain.ErrAssistantUnavailable)
	assert.False(t, m.Active())

	m = conversation.NewManager(&recordingGateway{startErr: errors.New("dial")}, nil)
	_, err = m.StartNew(context.Background(), patient())
	require.ErrorIs(t, err, domain.ErrAssistantUnavailable)
}

func TestContinueWithoutConversation(t *testing.T) {
	m := conversation.NewManager(llm.NewMockLLM(), nil)

	_, err := m.Continue(context.Background(), "hello")
	require.ErrorIs(t, err, domain.ErrNoActiveConversation)
}

func TestContinueEmptyReplyUsesFallback(t *testing.T) {
	gw := &recordingGateway{reply: "first"}
	m := conversation.NewManager(gw, nil)
	_, err := m.StartNew(context.Background(), patient())
	require.NoError(t, err)

	gw.reply = ""
	reply, err := m.Continue(context.Background(), "and now?")
	require.NoError(t, err)
	assert.Equal(t, conversation.FallbackResponse, reply)
}

func TestResumeFromPrependsIntakePrompt(t *testing.T) {
	gw := &recordingGateway{reply: "ok"}
	m := conversation.NewManager(gw, nil)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := domain.NewCase(patient(), now)
	c.ID = 7
	c.Append(domain.NewMessage(domain.SenderAI, "1. Aspirin", now))
	c.Append(domain.NewMessage(domain.SenderUser, "BP 90/60", now.Add(time.Minute)))
	c.Append(domain.NewMessage(domain.SenderAI, "Raise legs", now.Add(2*time.Minute)))

	require.NoError(t, m.ResumeFrom(context.Background(), c))
	assert.Empty(t, gw.sent, "resume must not request a reply")
	assert.Equal(t, conversation.SystemInstruction, gw.system)

	require.Len(t, gw.history, 4)
	assert.Equal(t, domain.Turn{Role: domain.TurnUser, Text: conversation.BuildIntakePrompt(c.PatientData)}, gw.history[0])
	assert.Equal(t, domain.Turn{Role: domain.TurnModel, Text: "1. Aspirin"}, gw.history[1])
	assert.Equal(t, domain.Turn{Role: domain.TurnUser, Text: "BP 90/60"}, gw.history[2])
	assert.Equal(t, domain.Turn{Role: domain.TurnModel, Text: "Raise legs"}, gw.history[3])
}

func TestResumeThenContinue(t *testing.T) {
	m := conversation.NewManager(llm.NewMockLLM(), nil)

	c := domain.NewCase(patient(), time.Now())
	c.ID = 1
	c.Append(domain.NewMessage(domain.SenderAI, "1. Rest", time.Now()))

	require.NoError(t, m.ResumeFrom(context.Background(), c))
	reply, err := m.Continue(context.Background(), "still in pain")
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	history := m.History()
	require.Len(t, history, 4)
	assert.Contains(t, history[0].Text, "PATIENT DATA:")
}

func TestResetDropsHandle(t *testing.T) {
	m := conversation.NewManager(llm.NewMockLLM(), nil)
	_, err := m.StartNew(context.Background(), patient())
	require.NoError(t, err)

	m.Reset()
	assert.False(t, m.Active())
	_, err = m.Continue(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrNoActiveConversation)
}

func TestResumeFailureIsAssistantUnavailable(t *testing.T) {
	m := conversation.NewManager(&recordingGateway{startErr: errors.New("offline")}, nil)
	c := domain.NewCase(patient(), time.Now())

	err := m.ResumeFrom(context.Background(), c)
	require.ErrorIs(t, err, domain.ErrAssistantUnavailable)
	assert.False(t, m.Active())
}

type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) StartConversation(context.Context, string, []domain.Turn) (domain.Conversation, error) {
	return g, nil
}

func (g *blockingGateway) Send(context.Context, string) (string, error) {
	g.entered <- struct{}{}
	<-g.release
	return "late reply", nil
}

func (g *blockingGateway) History() []domain.Turn { return nil }

func TestResetDuringStartSupersedes(t *testing.T) {
	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	m := conversation.NewManager(gw, nil)

	errc := make(chan error, 1)
	go func() {
		_, err := m.StartNew(context.Background(), patient())
		errc <- err
	}()

	<-gw.entered
	m.Reset()
	close(gw.release)

	require.ErrorIs(t, <-errc, conversation.ErrSuperseded)
	assert.False(t, m.Active())
}
