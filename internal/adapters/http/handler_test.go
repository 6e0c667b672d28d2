package httpadapter_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/PabloGalante/suma-triage/internal/adapters/http"
	"github.com/PabloGalante/suma-triage/internal/adapters/llm"
	"github.com/PabloGalante/suma-triage/internal/adapters/storage/memory"
	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/app/cases"
	"github.com/PabloGalante/suma-triage/internal/app/conversation"
	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/app/session"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *emergency.Inbox) {
	t.Helper()
	return newTestServerWithOrigin(t, "")
}

func newTestServerWithOrigin(t *testing.T, origin string) (http.Handler, *emergency.Inbox) {
	t.Helper()

	clock := func() time.Time { return fixedNow }
	reg := prometheus.NewRegistry()
	metrics := observability.NewCollector(reg)

	gate := access.NewGate(memory.NewPreferenceStore(), access.WithClock(clock), access.WithMetrics(metrics))
	repo := cases.NewRepository(memory.NewCaseStore(), metrics)
	conv := conversation.NewManager(llm.NewMockLLM(), metrics)
	ctrl := session.NewController(gate, repo, conv, session.WithClock(clock), session.WithMetrics(metrics))

	inbox := emergency.NewInbox(10)
	loc := emergency.FixedLocator{Location: emergency.Location{Latitude: -12.05, Longitude: -77.04}, OK: true}

	return httpadapter.NewServer(httpadapter.Deps{
		Controller:    ctrl,
		Emergency:     emergency.NewService("es-PE", inbox, loc, inbox, inbox),
		Inbox:         inbox,
		Gatherer:      reg,
		AllowedOrigin: origin,
		Now:           clock,
	}), inbox
}

type snapshotBody struct {
	Phase   string `json:"phase"`
	Loading bool   `json:"loading"`
	Error   string `json:"error"`
	Case    *struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Chat  []struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"chat"`
	} `json:"case"`
}

type errorBody struct {
	Code    string        `json:"code"`
	Action  string        `json:"action"`
	Session *snapshotBody `json:"session"`
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body=%s", w.Body.String())
}

func onboard(t *testing.T, srv http.Handler) {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/access/activate", `{"code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, srv, http.MethodPost, "/access/role", `{"role":"paramedic"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func startCase(t *testing.T, srv http.Handler) snapshotBody {
	t.Helper()
	onboard(t, srv)
	w := do(t, srv, http.MethodPatch, "/session/intake",
		`{"age":"34","sex":"F","symptoms":"fever, headache"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, http.MethodPost, "/session/submit", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap snapshotBody
	decodeInto(t, w, &snap)
	return snap
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestAccessBeforeActivation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/access", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Result string `json:"result"`
	}
	decodeInto(t, w, &st)
	assert.Equal(t, "not_activated", st.Result)

	w = do(t, srv, http.MethodGet, "/cases", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body errorBody
	decodeInto(t, w, &body)
	assert.Equal(t, httpadapter.ErrCodeNotActivated, body.Code)
}

func TestActivateRejectsBadCode(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/access/activate", `{"code":"12ab"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeInto(t, w, &body)
	assert.Equal(t, httpadapter.ErrCodeValidation, body.Code)
	require.NotNil(t, body.Session)
	assert.Equal(t, "activation", body.Session.Phase)
}

func TestUnknownRole(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/access/activate", `{"code":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodPost, "/access/role", `{"role":"astronaut"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitAndChat(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := startCase(t, srv)

	assert.Equal(t, "active", snap.Phase)
	require.NotNil(t, snap.Case)
	assert.Equal(t, "fever", snap.Case.Title)
	require.Len(t, snap.Case.Chat, 1)
	assert.Equal(t, "ai", snap.Case.Chat[0].Sender)

	w := do(t, srv, http.MethodPost, "/session/messages", `{"text":"Temperature is 39.5"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeInto(t, w, &snap)
	require.Len(t, snap.Case.Chat, 3)
	assert.Equal(t, "user", snap.Case.Chat[1].Sender)
	assert.Contains(t, snap.Case.Chat[2].Text, "Temperature is 39.5")
}

func TestSubmitValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	onboard(t, srv)

	w := do(t, srv, http.MethodPost, "/session/submit", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	decodeInto(t, w, &body)
	assert.Equal(t, httpadapter.ErrCodeValidation, body.Code)
	require.NotNil(t, body.Session)
	assert.Equal(t, "intake", body.Session.Phase)
}

func TestSendWithoutCase(t *testing.T) {
	srv, _ := newTestServer(t)
	onboard(t, srv)

	w := do(t, srv, http.MethodPost, "/session/messages", `{"text":"hello"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body errorBody
	decodeInto(t, w, &body)
	assert.Equal(t, httpadapter.ErrCodeNoActiveConversation, body.Code)
}

func TestInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/access/activate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCasesListGetAndResume(t *testing.T) {
	srv, _ := newTestServer(t)
	snap := startCase(t, srv)
	id := snap.Case.ID

	w := do(t, srv, http.MethodGet, "/cases", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		ID      int64  `json:"id"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	decodeInto(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Contains(t, list[0].Summary, "Paramedic")

	w = do(t, srv, http.MethodGet, "/cases/1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/cases/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodGet, "/cases/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/session/new", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeInto(t, w, &snap)
	assert.Equal(t, "intake", snap.Phase)
	assert.Nil(t, snap.Case)

	w = do(t, srv, http.MethodPost, "/session/resume/1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeInto(t, w, &snap)
	assert.Equal(t, "active", snap.Phase)
	assert.Equal(t, id, snap.Case.ID)
}

func TestReportDownloadAndShare(t *testing.T) {
	srv, _ := newTestServer(t)
	startCase(t, srv)

	w := do(t, srv, http.MethodGet, "/cases/1/report.pdf", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Report_2025-03-14.pdf"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = do(t, srv, http.MethodGet, "/cases/1/report.pdf?delivery=share", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "inline;"))
	assert.Equal(t, "Suma report: fever", w.Header().Get("X-Share-Title"))
}

func TestEmergencyAndNotices(t *testing.T) {
	srv, inbox := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/emergency", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Number string `json:"number"`
		TelURI string `json:"tel_uri"`
	}
	decodeInto(t, w, &resp)
	assert.Equal(t, "105", resp.Number)
	assert.Equal(t, "tel:105", resp.TelURI)

	require.Eventually(t, func() bool {
		w = do(t, srv, http.MethodGet, "/emergency/notices", "")
		var notices []emergency.Notice
		if json.Unmarshal(w.Body.Bytes(), &notices) != nil || len(notices) == 0 {
			return false
		}
		return notices[0].Kind == "share" && strings.Contains(notices[0].Text, "maps.google.com")
	}, time.Second, 10*time.Millisecond)

	assert.Empty(t, inbox.Drain())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	startCase(t, srv)

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "suma_cases_created_total 1")
}

func doFrom(t *testing.T, srv http.Handler, method, path, origin string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", origin)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServerWithOrigin(t, "http://localhost:5173")

	w := doFrom(t, srv, http.MethodOptions, "/session/submit", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = doFrom(t, srv, http.MethodOptions, "/session/submit", "https://evil.example")
	assert.NotEqual(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCasesNotReadableCrossOriginByDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	startCase(t, srv)

	w := doFrom(t, srv, http.MethodGet, "/cases/1", "https://evil.example")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = doFrom(t, srv, http.MethodOptions, "/session/submit", "https://evil.example")
	assert.NotEqual(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
