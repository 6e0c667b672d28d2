package access

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// ActivationPeriod is how long a valid code grants access.
const ActivationPeriod = 30 * 24 * time.Hour

// RenewalMessage is shown instead of the code entry once access has expired.
const RenewalMessage = "Your access has expired. Contact your Suma provider to renew your license."

var activationCode = regexp.MustCompile(`^[0-9]{6}$`)

type Result int

const (
	NotActivated Result = iota
	Granted
	Denied
)

func (r Result) String() string {
	switch r {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "not_activated"
	}
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Banner is the expiration warning level shown above every non-activation view.
type Banner int

const (
	BannerNone Banner = iota
	BannerWarning
	BannerCritical
)

func (b Banner) String() string {
	switch b {
	case BannerWarning:
		return "warning"
	case BannerCritical:
		return "critical"
	default:
		return "none"
	}
}

func (b Banner) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// Status is the outcome of one access check.
type Status struct {
	Result        Result          `json:"result"`
	DaysRemaining int             `json:"days_remaining"`
	Role          domain.UserRole `json:"role"`
	Banner        Banner          `json:"banner"`
	// Expired is set when this check found and purged an expired grant.
	Expired bool `json:"expired"`
}

func (s Status) HasRole() bool { return s.Role.Valid() }

// Gate enforces the local, time-limited activation.
type Gate struct {
	prefs   domain.PreferenceStore
	metrics observability.Metrics
	now     func() time.Time
}

type Option func(*Gate)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithMetrics(m observability.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(prefs domain.PreferenceStore, opts ...Option) *Gate {
	g := &Gate{
		prefs:   prefs,
		metrics: observability.NopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DaysLeft rounds the remaining time up to whole days. Anything not in the future is 0.
func DaysLeft(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	return int((d + day - 1) / day)
}

func bannerFor(days int) Banner {
	switch {
	case days <= 3:
		return BannerCritical
	case days <= 7:
		return BannerWarning
	default:
		return BannerNone
	}
}

// Check evaluates the stored grant. An expired grant is purged together with
// the role and the last-active case pointer.
func (g *Gate) Check(ctx context.Context) (Status, error) {
	log := observability.LoggerFromContext(ctx)

	raw, ok, err := g.prefs.GetPreference(ctx, domain.PrefActivationExpiry)
	if err != nil {
		return Status{}, fmt.Errorf("%w: read activation expiry: %v", domain.ErrStorageFault, err)
	}
	if !ok {
		g.metrics.RecordAccessCheck(NotActivated.String())
		return Status{Result: NotActivated}, nil
	}

	days := 0
	expiry, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		log.Warn("unreadable activation expiry, treating as expired", "value", raw, "error", err)
	} else {
		days = DaysLeft(expiry, g.now())
	}

	if days <= 0 {
		if err := g.prefs.DeletePreferences(ctx,
			domain.PrefActivationExpiry,
			domain.PrefUserRole,
			domain.PrefLastActiveCase,
		); err != nil {
			return Status{}, fmt.Errorf("%w: purge expired access: %v", domain.ErrStorageFault, err)
		}
		log.Info("access expired, local identifiers purged")
		g.metrics.RecordAccessCheck(Denied.String())
		return Status{Result: Denied, Expired: true}, nil
	}

	st := Status{
		Result:        Granted,
		DaysRemaining: days,
		Banner:        bannerFor(days),
	}

	rawRole, ok, err := g.prefs.GetPreference(ctx, domain.PrefUserRole)
	if err != nil {
		return Status{}, fmt.Errorf("%w: read role: %v", domain.ErrStorageFault, err)
	}
	if ok {
		role, err := domain.ParseUserRole(rawRole)
		if err != nil {
			log.Warn("ignoring unknown stored role", "value", rawRole)
		} else {
			st.Role = role
		}
	}

	g.metrics.RecordAccessCheck(Granted.String())
	return st, nil
}

// Activate validates a six digit code and grants ActivationPeriod from now,
// replacing any previous grant. A rejected code changes nothing.
func (g *Gate) Activate(ctx context.Context, code string) (time.Time, error) {
	if !activationCode.MatchString(code) {
		return time.Time{}, &domain.ValidationError{
			Field:   "code",
			Message: "enter a valid 6-digit activation code",
		}
	}

	expiry := g.now().Add(ActivationPeriod).UTC().Truncate(time.Second)
	if err := g.prefs.SetPreference(ctx, domain.PrefActivationExpiry, expiry.Format(time.RFC3339)); err != nil {
		return time.Time{}, fmt.Errorf("%w: store activation: %v", domain.ErrStorageFault, err)
	}

	observability.LoggerFromContext(ctx).Info("access activated", "expires_at", expiry)
	return expiry, nil
}

func (g *Gate) SelectRole(ctx context.Context, role domain.UserRole) error {
	if !role.Valid() {
		return &domain.ValidationError{Field: "role", Message: "select a role"}
	}
	if err := g.prefs.SetPreference(ctx, domain.PrefUserRole, role.String()); err != nil {
		return fmt.Errorf("%w: store role: %v", domain.ErrStorageFault, err)
	}
	return nil
}

// RememberCase records the case to reopen on next launch.
func (g *Gate) RememberCase(ctx context.Context, id domain.CaseID) error {
	if err := g.prefs.SetPreference(ctx, domain.PrefLastActiveCase, strconv.FormatInt(int64(id), 10)); err != nil {
		return fmt.Errorf("%w: store last case: %v", domain.ErrStorageFault, err)
	}
	return nil
}

// LastCase returns the remembered case id. A malformed pointer reads as absent.
func (g *Gate) LastCase(ctx context.Context) (domain.CaseID, bool, error) {
	raw, ok, err := g.prefs.GetPreference(ctx, domain.PrefLastActiveCase)
	if err != nil {
		return 0, false, fmt.Errorf("%w: read last case: %v", domain.ErrStorageFault, err)
	}
	if !ok {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return domain.CaseID(id), true, nil
}

func (g *Gate) ForgetCase(ctx context.Context) error {
	if err := g.prefs.DeletePreferences(ctx, domain.PrefLastActiveCase); err != nil {
		return fmt.Errorf("%w: forget last case: %v", domain.ErrStorageFault, err)
	}
	return nil
}
