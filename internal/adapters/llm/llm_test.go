package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/suma-triage/internal/adapters/llm"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

func TestMockLLMIntakeAndFollowUp(t *testing.T) {
	ctx := context.Background()
	conv, err := llm.NewMockLLM().StartConversation(ctx, "system", nil)
	require.NoError(t, err)

	reply, err := conv.Send(ctx, "PATIENT DATA:\n- Age: 40")
	require.NoError(t, err)
	assert.Contains(t, reply, "1. ")

	reply, err = conv.Send(ctx, "still dizzy")
	require.NoError(t, err)
	assert.Contains(t, reply, `"still dizzy"`)

	assert.Len(t, conv.History(), 4)
}

func TestMockLLMKeepsSeedHistory(t *testing.T) {
	seed := []domain.Turn{
		{Role: domain.TurnUser, Text: "PATIENT DATA: ..."},
		{Role: domain.TurnModel, Text: "1. Rest."},
	}
	conv, err := llm.NewMockLLM().StartConversation(context.Background(), "system", seed)
	require.NoError(t, err)

	seed[0].Text = "mutated"
	h := conv.History()
	require.Len(t, h, 2)
	assert.Equal(t, "PATIENT DATA: ...", h[0].Text)
}

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func openAIServer(t *testing.T, fail *atomic.Bool, seen *[]chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*seen = append(*seen, req)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "reply " + req.Messages[len(req.Messages)-1].Content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIReplaysHistory(t *testing.T) {
	ctx := context.Background()
	var fail atomic.Bool
	var seen []chatRequest
	srv := openAIServer(t, &fail, &seen)

	gw := llm.NewOpenAIGateway("test-key", srv.URL+"/v1", "test-model")
	seed := []domain.Turn{
		{Role: domain.TurnUser, Text: "intake"},
		{Role: domain.TurnModel, Text: "advice"},
	}
	conv, err := gw.StartConversation(ctx, "be brief", seed)
	require.NoError(t, err)

	reply, err := conv.Send(ctx, "next")
	require.NoError(t, err)
	assert.Equal(t, "reply next", reply)

	require.Len(t, seen, 1)
	assert.Equal(t, "test-model", seen[0].Model)
	roles := make([]string, 0, len(seen[0].Messages))
	for _, m := range seen[0].Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, "be brief", seen[0].Messages[0].Content)

	assert.Len(t, conv.History(), 4)
}

func TestOpenAIFailedSendLeavesHistory(t *testing.T) {
	ctx := context.Background()
	var fail atomic.Bool
	var seen []chatRequest
	srv := openAIServer(t, &fail, &seen)

	conv, err := llm.NewOpenAIGateway("k", srv.URL+"/v1", "").StartConversation(ctx, "sys", nil)
	require.NoError(t, err)

	fail.Store(true)
	_, err = conv.Send(ctx, "lost")
	require.Error(t, err)
	assert.Empty(t, conv.History())

	fail.Store(false)
	_, err = conv.Send(ctx, "kept")
	require.NoError(t, err)
	h := conv.History()
	require.Len(t, h, 2)
	assert.Equal(t, "kept", h[0].Text)
}

type countingConversation struct{ sends atomic.Int32 }

func (c *countingConversation) Send(context.Context, string) (string, error) {
	c.sends.Add(1)
	return "ok", nil
}

func (c *countingConversation) History() []domain.Turn { return nil }

type countingGateway struct{ conv *countingConversation }

func (g countingGateway) StartConversation(context.Context, string, []domain.Turn) (domain.Conversation, error) {
	return g.conv, nil
}

func TestRateLimitedBlocksPastBurst(t *testing.T) {
	inner := &countingConversation{}
	gw := llm.NewRateLimited(countingGateway{conv: inner}, 1)

	conv, err := gw.StartConversation(context.Background(), "sys", nil)
	require.NoError(t, err)

	_, err = conv.Send(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conv.Send(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.sends.Load())
}

func TestRateLimitedUnlimited(t *testing.T) {
	inner := &countingConversation{}
	conv, err := llm.NewRateLimited(countingGateway{conv: inner}, 0).
		StartConversation(context.Background(), "sys", nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := conv.Send(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(10), inner.sends.Load())
}
