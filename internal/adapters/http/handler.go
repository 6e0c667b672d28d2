package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/app/report"
	"github.com/PabloGalante/suma-triage/internal/app/session"
	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Controller *session.Controller
	Emergency  *emergency.Service
	// Inbox receives shares and alerts for the browser to pick up; may be nil.
	Inbox         *emergency.Inbox
	Gatherer      prometheus.Gatherer
	AllowedOrigin string
	Now           func() time.Time
}

type Server struct {
	ctrl      *session.Controller
	emergency *emergency.Service
	inbox     *emergency.Inbox
	now       func() time.Time
}

func NewServer(d Deps) http.Handler {
	s := &Server{
		ctrl:      d.Controller,
		emergency: d.Emergency,
		inbox:     d.Inbox,
		now:       d.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}

	r := chi.NewRouter()
	r.Use(withRecovery)
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(withCORS(d.AllowedOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", observability.Handler(d.Gatherer))
	}

	r.Route("/access", func(r chi.Router) {
		r.Get("/", s.handleAccess)
		r.Post("/activate", s.handleActivate)
		r.Post("/role", s.handleRole)
	})

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Post("/boot", s.handleBoot)
		r.Patch("/intake", s.handleIntake)
		r.Post("/submit", s.handleSubmit)
		r.Post("/messages", s.handleSend)
		r.Post("/new", s.handleNewCase)
		r.Post("/resume/{id}", s.handleResume)
	})

	r.Route("/cases", func(r chi.Router) {
		r.Get("/", s.handleListCases)
		r.Get("/{id}", s.handleGetCase)
		r.Get("/{id}/report.pdf", s.handleReport)
	})

	if s.emergency != nil {
		r.Post("/emergency", s.handleEmergency)
		r.Get("/emergency/notices", s.handleNotices)
	}

	return r
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type activateRequest struct {
	Code string `json:"code"`
}

type roleRequest struct {
	Role string `json:"role"`
}

// intakeRequest only touches the fields that are present.
type intakeRequest struct {
	Age         *string `json:"age,omitempty"`
	Sex         *string `json:"sex,omitempty"`
	Background  *string `json:"background,omitempty"`
	Medications *string `json:"medications,omitempty"`
	Symptoms    *string `json:"symptoms,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type caseSummaryResponse struct {
	ID        domain.CaseID `json:"id"`
	Title     string        `json:"title"`
	StartTime time.Time     `json:"start_time"`
	Summary   string        `json:"summary"`
}

type emergencyResponse struct {
	Number string `json:"number"`
	TelURI string `json:"tel_uri"`
}

// ─────────────────────────────────────────────
// Access
// ─────────────────────────────────────────────

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctrl.CheckAccess(r.Context())
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := s.ctrl.Activate(r.Context(), req.Code)
	s.respond(w, r, snap, err)
}

func (s *Server) handleRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	role, err := domain.ParseUserRole(req.Role)
	if err != nil {
		s.fail(w, r, err, true)
		return
	}
	snap, err := s.ctrl.SelectRole(r.Context(), role)
	s.respond(w, r, snap, err)
}

// ─────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Boot(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := s.ctrl.UpdateIntake(func(p *domain.PatientData) {
		if req.Age != nil {
			p.SetAge(*req.Age)
		}
		if req.Sex != nil {
			p.SetSex(*req.Sex)
		}
		if req.Background != nil {
			p.SetBackground(*req.Background)
		}
		if req.Medications != nil {
			p.SetMedications(*req.Medications)
		}
		if req.Symptoms != nil {
			p.SetSymptoms(*req.Symptoms)
		}
	})
	s.respond(w, r, snap, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Submit(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := s.ctrl.Send(r.Context(), req.Text)
	s.respond(w, r, snap, err)
}

func (s *Server) handleNewCase(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.NewCase(r.Context())
	s.respond(w, r, snap, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	snap, err := s.ctrl.Resume(r.Context(), id)
	s.respond(w, r, snap, err)
}

// ─────────────────────────────────────────────
// Cases and reports
// ─────────────────────────────────────────────

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	all, err := s.ctrl.History(r.Context())
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	out := make([]caseSummaryResponse, 0, len(all))
	for _, c := range all {
		out = append(out, caseSummaryResponse{
			ID:        c.ID,
			Title:     c.Title,
			StartTime: c.StartTime,
			Summary:   c.PatientData.Summary(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	c, err := s.ctrl.Lookup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	c, err := s.ctrl.Lookup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, false)
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := report.Render(&buf, c, now); err != nil {
		s.fail(w, r, fmt.Errorf("render report for case %d: %w", id, err), false)
		return
	}

	delivery := report.ParseDelivery(r.URL.Query().Get("delivery"))
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("%s; filename=%q", delivery.Disposition(), report.FileName(now)))
	if delivery == report.Share {
		w.Header().Set("X-Share-Title", report.ShareTitle(c))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ─────────────────────────────────────────────
// Emergency
// ─────────────────────────────────────────────

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	d, err := s.emergency.Trigger(r.Context())
	if err != nil {
		s.fail(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusAccepted, emergencyResponse{Number: d.Number, TelURI: d.TelURI})
}

func (s *Server) handleNotices(w http.ResponseWriter, _ *http.Request) {
	if s.inbox == nil {
		writeJSON(w, http.StatusOK, []emergency.Notice{})
		return
	}
	writeJSON(w, http.StatusOK, s.inbox.Drain())
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

// respond writes the snapshot, or the mapped error with the snapshot attached.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, snap session.Snapshot, err error) {
	if err != nil {
		status, apiErr := toAPIError(err)
		logFailure(r, status, err)
		writeErrorResponse(w, status, apiErr, &snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// fail writes the mapped error. withSession attaches the current snapshot.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, withSession bool) {
	status, apiErr := toAPIError(err)
	logFailure(r, status, err)
	var snap *session.Snapshot
	if withSession {
		cur := s.ctrl.Snapshot()
		snap = &cur
	}
	writeErrorResponse(w, status, apiErr, snap)
}

func logFailure(r *http.Request, status int, err error) {
	log := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "error", err)
		return
	}
	log.Info("request rejected", "path", r.URL.Path, "error", err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func caseID(w http.ResponseWriter, r *http.Request) (domain.CaseID, bool) {
	n, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || n <= 0 {
		badRequest(w, "invalid case id")
		return 0, false
	}
	return domain.CaseID(n), true
}
