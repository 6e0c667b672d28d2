package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// OpenAIGateway implements domain.ConversationGateway with the chat completion API.
// The API is stateless, so each conversation keeps its own history and replays it on every send.
type OpenAIGateway struct {
	client    *openai.Client
	chatModel string
}

// NewOpenAIGateway talks to the OpenAI API, or to a compatible server when baseURL is set.
func NewOpenAIGateway(apiKey, baseURL, model string) *OpenAIGateway {
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGateway{
		client:    openai.NewClientWithConfig(cfg),
		chatModel: model,
	}
}

func (g *OpenAIGateway) StartConversation(
	_ context.Context,
	systemInstruction string,
	history []domain.Turn,
) (domain.Conversation, error) {
	if g.client == nil {
		return nil, errors.New("openai client not initialized")
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemInstruction,
	})
	for _, t := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(t.Role), Content: t.Text})
	}

	return &openAIConversation{gw: g, messages: msgs}, nil
}

type openAIConversation struct {
	gw *OpenAIGateway

	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

// Send appends the user turn and the reply only when the call succeeds, so a failed send
// leaves the history as it was.
func (c *openAIConversation) Send(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	req := make([]openai.ChatCompletionMessage, len(c.messages), len(c.messages)+1)
	copy(req, c.messages)
	c.mu.Unlock()

	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	req = append(req, userMsg)

	resp, err := c.gw.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.gw.chatModel,
		Messages:    req,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	reply := ""
	if len(resp.Choices) > 0 {
		reply = resp.Choices[0].Message.Content
	}

	c.mu.Lock()
	c.messages = append(c.messages, userMsg, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	c.mu.Unlock()

	return reply, nil
}

func (c *openAIConversation) History() []domain.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]domain.Turn, 0, len(c.messages))
	for _, m := range c.messages {
		switch m.Role {
		case openai.ChatMessageRoleUser:
			turns = append(turns, domain.Turn{Role: domain.TurnUser, Text: m.Content})
		case openai.ChatMessageRoleAssistant:
			turns = append(turns, domain.Turn{Role: domain.TurnModel, Text: m.Content})
		}
	}
	return turns
}

func openAIRole(r domain.TurnRole) string {
	if r == domain.TurnModel {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}
