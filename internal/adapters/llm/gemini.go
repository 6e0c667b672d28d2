package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

type GeminiConfig struct {
	// APIKey selects the Gemini API backend. When empty, Vertex AI is used with Project/Location.
	APIKey    string
	Project   string
	Location  string
	ModelName string
}

// GeminiGateway implements domain.ConversationGateway on top of the genai Chats API.
type GeminiGateway struct {
	client    *genai.Client
	modelName string
}

// NewGeminiGateway creates a gateway for Gemini, either through the Gemini API or Vertex AI.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig) (*GeminiGateway, error) {
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.APIKey == "" {
		if cfg.Project == "" || cfg.Location == "" {
			return nil, fmt.Errorf("gemini: either an API key or project and location must be set")
		}
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiGateway{
		client:    client,
		modelName: modelName,
	}, nil
}

// StartConversation opens a chat seeded with history. No request is sent here.
func (g *GeminiGateway) StartConversation(
	ctx context.Context,
	systemInstruction string,
	history []domain.Turn,
) (domain.Conversation, error) {
	temp := float32(0.4)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		// genai expects the system instruction as user-role content
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   int32(8192),
	}

	chat, err := g.client.Chats.Create(ctx, g.modelName, cfg, toContents(history))
	if err != nil {
		return nil, fmt.Errorf("gemini create chat: %w", err)
	}
	return &geminiConversation{chat: chat}, nil
}

type geminiConversation struct {
	chat *genai.Chat
}

func (c *geminiConversation) Send(ctx context.Context, text string) (string, error) {
	res, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("gemini send message: %w", err)
	}
	// An empty candidate list is not an error for us; the caller substitutes a fallback.
	return res.Text(), nil
}

func (c *geminiConversation) History() []domain.Turn {
	return fromContents(c.chat.History(false))
}

func toContents(history []domain.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		var role genai.Role
		switch t.Role {
		case domain.TurnModel:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	return contents
}

func fromContents(contents []*genai.Content) []domain.Turn {
	turns := make([]domain.Turn, 0, len(contents))
	for _, c := range contents {
		if c == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
		role := domain.TurnUser
		if c.Role == string(genai.RoleModel) {
			role = domain.TurnModel
		}
		turns = append(turns, domain.Turn{Role: role, Text: sb.String()})
	}
	return turns
}
