package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// RateLimited throttles outbound sends across every conversation opened through the gateway.
type RateLimited struct {
	next    domain.ConversationGateway
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute sends per minute with a burst of the same size.
// perMinute <= 0 disables throttling.
func NewRateLimited(next domain.ConversationGateway, perMinute int) *RateLimited {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) StartConversation(
	ctx context.Context,
	systemInstruction string,
	history []domain.Turn,
) (domain.Conversation, error) {
	conv, err := r.next.StartConversation(ctx, systemInstruction, history)
	if err != nil {
		return nil, err
	}
	return &limitedConversation{next: conv, limiter: r.limiter}, nil
}

type limitedConversation struct {
	next    domain.Conversation
	limiter *rate.Limiter
}

func (c *limitedConversation) Send(ctx context.Context, text string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.next.Send(ctx, text)
}

func (c *limitedConversation) History() []domain.Turn {
	return c.next.History()
}
