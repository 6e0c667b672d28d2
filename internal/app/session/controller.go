package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/app/cases"
	"github.com/PabloGalante/suma-triage/internal/app/conversation"
	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// User-facing messages carried in Snapshot.Error / Snapshot.Warning.
const (
	MsgRecommendationFailed = "Could not get a recommendation. Check your connection and try again."
	MsgCaseNotSaved         = "The case could not be saved. Try again."
	MsgReplyFailed          = "The assistant could not answer. Send your message again."
	MsgUpdateNotSaved       = "The last exchange was not saved. It will be saved with the next successful reply."
	MsgResumeFailed         = "This case could not be reopened. Start a new case."
	MsgSelectRole           = "Select your professional role first."
)

// Controller drives one case at a time through intake, the initial
// recommendation and the follow-up chat. All methods are safe for concurrent
// use; the mutex is never held while the assistant or the store is called.
type Controller struct {
	gate    *access.Gate
	repo    *cases.Repository
	conv    *conversation.Manager
	metrics observability.Metrics
	now     func() time.Time

	mu         sync.Mutex
	phase      Phase
	loading    bool
	intake     domain.PatientData
	current    *domain.Case
	generation uint64
	lastErr    string
	warning    string
	status     access.Status
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithMetrics(m observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func NewController(gate *access.Gate, repo *cases.Repository, conv *conversation.Manager, opts ...Option) *Controller {
	c := &Controller{
		gate:    gate,
		repo:    repo,
		conv:    conv,
		metrics: observability.NopMetrics{},
		now:     time.Now,
		phase:   PhaseActivation,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:   c.phase,
		Loading: c.loading,
		Intake:  c.intake,
		Case:    c.current.Clone(),
		Error:   c.lastErr,
		Warning: c.warning,
		Access:  c.status,
	}
}

// ─────────────────────────────────────────
// Launch, activation and role selection
// ─────────────────────────────────────────

// Boot re-enters the controller at launch: activation, role selection, the
// remembered case or a blank intake, in that order of precedence.
func (c *Controller) Boot(ctx context.Context) (Snapshot, error) {
	st, err := c.gate.Check(ctx)
	if err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.status = st
	if st.Result != access.Granted {
		c.toActivationLocked()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.conv.Reset()
		return snap, nil
	}
	if !st.HasRole() {
		c.phase = PhaseRoleSelection
		c.lastErr = ""
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	id, ok, err := c.gate.LastCase(ctx)
	if err != nil {
		return c.Snapshot(), err
	}
	if ok {
		err := c.resume(ctx, id)
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.resetToIntakeLocked()
	c.mu.Unlock()
	return c.Snapshot(), nil
}

// Activate applies an activation code and re-runs the launch sequence.
func (c *Controller) Activate(ctx context.Context, code string) (Snapshot, error) {
	if _, err := c.gate.Activate(ctx, code); err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	return c.Boot(ctx)
}

// SelectRole stores the user's role and opens a blank case.
func (c *Controller) SelectRole(ctx context.Context, role domain.UserRole) (Snapshot, error) {
	st, err := c.gate.Check(ctx)
	if err != nil {
		return c.Snapshot(), err
	}
	if err := c.applyStatus(st, false); err != nil {
		return c.Snapshot(), err
	}
	if err := c.gate.SelectRole(ctx, role); err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.status.Role = role
	c.mu.Unlock()

	return c.NewCase(ctx)
}

// ─────────────────────────────────────────
// Intake
// ─────────────────────────────────────────

// UpdateIntake edits the intake draft through the PatientData setters.
func (c *Controller) UpdateIntake(edit func(*domain.PatientData)) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIntake {
		return c.snapshotLocked(), &domain.ValidationError{Field: "phase", Message: "the intake form is not open"}
	}
	edit(&c.intake)
	c.intake.Role = c.status.Role
	return c.snapshotLocked(), nil
}

// Submit asks for the initial recommendation and, on success, persists the new case.
func (c *Controller) Submit(ctx context.Context) (Snapshot, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return c.Snapshot(), domain.ErrBusy
	}
	if c.phase != PhaseIntake {
		c.mu.Unlock()
		return c.Snapshot(), &domain.ValidationError{Field: "phase", Message: "the intake form is not open"}
	}
	data := c.intake
	data.Role = c.status.Role
	if err := data.ValidateIntake(); err != nil {
		c.lastErr = err.Error()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	c.phase = PhaseAwaitingInitialReply
	c.loading = true
	c.lastErr, c.warning = "", ""
	gen := c.generation
	c.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("generation", gen)
	log.Info("submitting intake")

	startedAt := c.now()
	reply, err := c.conv.StartNew(ctx, data)
	if errors.Is(err, conversation.ErrSuperseded) || !c.isCurrent(gen) {
		c.discardStale(ctx, "submit")
		return c.Snapshot(), nil
	}
	if err != nil {
		return c.failSubmit(gen, MsgRecommendationFailed, err)
	}

	kase := domain.NewCase(data, startedAt)
	kase.Append(domain.NewMessage(domain.SenderAI, reply, c.now()))

	id, err := c.repo.Create(ctx, kase)
	if err != nil {
		return c.failSubmit(gen, MsgCaseNotSaved, err)
	}
	kase.ID = id

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		log.Warn("case saved after the user moved on", "case_id", id)
		c.discardStale(ctx, "submit")
		return c.Snapshot(), nil
	}
	c.generation++
	c.current = kase
	c.phase = PhaseActive
	c.loading = false
	c.mu.Unlock()

	c.remember(ctx, id)
	log.Info("case active", "case_id", id)
	return c.Snapshot(), nil
}

func (c *Controller) failSubmit(gen uint64, msg string, err error) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.phase = PhaseIntake
		c.loading = false
		c.lastErr = msg
	}
	return c.snapshotLocked(), err
}

// ─────────────────────────────────────────
// Follow-up chat
// ─────────────────────────────────────────

// Send appends the user's message, asks the assistant and persists the case.
// A failed reply adds a local apology and leaves the stored case untouched.
func (c *Controller) Send(ctx context.Context, text string) (Snapshot, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return c.Snapshot(), err
	}

	text = strings.TrimSpace(text)

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return c.Snapshot(), domain.ErrBusy
	}
	if c.phase != PhaseActive || c.current == nil {
		c.mu.Unlock()
		return c.Snapshot(), domain.ErrNoActiveConversation
	}
	if text == "" {
		c.mu.Unlock()
		return c.Snapshot(), &domain.ValidationError{Field: "text", Message: "message is empty"}
	}
	c.current.Append(domain.NewMessage(domain.SenderUser, text, c.now()))
	c.loading = true
	c.lastErr = ""
	gen := c.generation
	caseID := c.current.ID
	c.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With("case_id", caseID, "generation", gen)

	reply, err := c.conv.Continue(ctx, text)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.discardStale(ctx, "send")
		return c.Snapshot(), nil
	}
	if err != nil {
		c.current.Append(domain.NewMessage(domain.SenderAI, conversation.ApologyText, c.now()))
		c.loading = false
		c.lastErr = MsgReplyFailed
		snap := c.snapshotLocked()
		c.mu.Unlock()
		log.Warn("reply failed, apology shown locally", "error", err)
		return snap, err
	}
	c.current.Append(domain.NewMessage(domain.SenderAI, reply, c.now()))
	toSave := c.current.Clone()
	c.mu.Unlock()

	_, saveErr := c.repo.Update(ctx, toSave)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.generation {
		c.loading = false
		c.warning = ""
		if saveErr != nil {
			c.warning = MsgUpdateNotSaved
		}
	}
	if saveErr != nil {
		log.Warn("case update failed, keeping local chat", "error", saveErr)
	}
	return c.snapshotLocked(), nil
}

// ─────────────────────────────────────────
// History, resume and new case
// ─────────────────────────────────────────

// CheckAccess runs the gate and reports the result. An expired or missing
// grant moves the controller to activation but is not an error here.
func (c *Controller) CheckAccess(ctx context.Context) (access.Status, error) {
	st, err := c.gate.Check(ctx)
	if err != nil {
		return access.Status{}, err
	}
	if err := c.applyStatus(st, false); err != nil &&
		!errors.Is(err, domain.ErrExpiredAccess) && !errors.Is(err, domain.ErrNotActivated) {
		return st, err
	}
	return st, nil
}

// Lookup reads a stored case without making it the active one.
func (c *Controller) Lookup(ctx context.Context, id domain.CaseID) (*domain.Case, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return nil, err
	}
	return c.repo.Fetch(ctx, id)
}

// History lists stored cases, newest first.
func (c *Controller) History(ctx context.Context) ([]*domain.Case, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return nil, err
	}
	all, err := c.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return cases.NewestFirst(all), nil
}

// Resume loads a stored case and rebuilds its conversation. A reply still
// pending for the previous case is abandoned, as with NewCase.
func (c *Controller) Resume(ctx context.Context, id domain.CaseID) (Snapshot, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return c.Snapshot(), err
	}
	err := c.resume(ctx, id)
	return c.Snapshot(), err
}

func (c *Controller) resume(ctx context.Context, id domain.CaseID) error {
	c.mu.Lock()
	if c.phase == PhaseResuming {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.generation++
	gen := c.generation
	c.phase = PhaseResuming
	c.loading = true
	c.current = nil
	c.lastErr, c.warning = "", ""
	c.mu.Unlock()
	c.conv.Reset()

	log := observability.LoggerFromContext(ctx).With("case_id", id, "generation", gen)
	log.Info("resuming case")

	kase, err := c.repo.Fetch(ctx, id)
	if err == nil {
		err = c.conv.ResumeFrom(ctx, kase)
	}

	c.mu.Lock()
	if gen != c.generation || errors.Is(err, conversation.ErrSuperseded) {
		c.mu.Unlock()
		c.discardStale(ctx, "resume")
		return nil
	}
	if err != nil {
		c.resetToIntakeLocked()
		c.lastErr = MsgResumeFailed
		c.mu.Unlock()
		log.Error("resume failed", "error", err)
		if ferr := c.gate.ForgetCase(ctx); ferr != nil {
			log.Warn("could not clear last case pointer", "error", ferr)
		}
		return fmt.Errorf("resume case %d: %w", id, err)
	}
	c.current = kase
	c.phase = PhaseActive
	c.loading = false
	c.mu.Unlock()

	c.remember(ctx, id)
	return nil
}

// NewCase abandons whatever is in progress and opens a blank intake form.
func (c *Controller) NewCase(ctx context.Context) (Snapshot, error) {
	if err := c.ensureAccess(ctx); err != nil {
		return c.Snapshot(), err
	}

	c.mu.Lock()
	c.generation++
	c.resetToIntakeLocked()
	c.mu.Unlock()
	c.conv.Reset()

	if err := c.gate.ForgetCase(ctx); err != nil {
		return c.Snapshot(), err
	}
	return c.Snapshot(), nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

// ensureAccess runs the gate before any case operation.
func (c *Controller) ensureAccess(ctx context.Context) error {
	st, err := c.gate.Check(ctx)
	if err != nil {
		return err
	}
	return c.applyStatus(st, true)
}

func (c *Controller) applyStatus(st access.Status, needRole bool) error {
	c.mu.Lock()
	c.status = st
	switch st.Result {
	case access.Denied:
		c.toActivationLocked()
		c.mu.Unlock()
		c.conv.Reset()
		return domain.ErrExpiredAccess
	case access.NotActivated:
		c.toActivationLocked()
		c.mu.Unlock()
		c.conv.Reset()
		return domain.ErrNotActivated
	}
	defer c.mu.Unlock()
	if needRole && !st.HasRole() {
		c.phase = PhaseRoleSelection
		c.lastErr = MsgSelectRole
		return &domain.ValidationError{Field: "role", Message: MsgSelectRole}
	}
	return nil
}

func (c *Controller) toActivationLocked() {
	c.generation++
	c.phase = PhaseActivation
	c.loading = false
	c.current = nil
	c.intake = domain.PatientData{}
	c.lastErr, c.warning = "", ""
}

func (c *Controller) resetToIntakeLocked() {
	c.phase = PhaseIntake
	c.loading = false
	c.current = nil
	c.intake = domain.PatientData{Role: c.status.Role}
	c.lastErr, c.warning = "", ""
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *Controller) discardStale(ctx context.Context, op string) {
	c.metrics.RecordStaleReply()
	observability.LoggerFromContext(ctx).Warn("discarding stale reply", "op", op)
}

func (c *Controller) remember(ctx context.Context, id domain.CaseID) {
	if err := c.gate.RememberCase(ctx, id); err != nil {
		observability.LoggerFromContext(ctx).Warn("could not remember last case", "case_id", id, "error", err)
	}
}
