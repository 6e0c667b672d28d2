package cases

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// Repository persists cases on top of a domain.CaseStore.
// Every store failure surfaces as domain.ErrStorageFault; a missing case stays domain.ErrNotFound.
type Repository struct {
	store   domain.CaseStore
	metrics observability.Metrics
}

func NewRepository(store domain.CaseStore, metrics observability.Metrics) *Repository {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Repository{store: store, metrics: metrics}
}

// Create stores a new case and returns its assigned id. The argument is left
// untouched; callers attach the id themselves.
func (r *Repository) Create(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	if c.HasID() {
		return 0, &domain.ValidationError{Field: "id", Message: "case already has an identity"}
	}
	if err := c.Validate(); err != nil {
		return 0, err
	}

	id, err := r.store.AddCase(ctx, c.Clone())
	if err != nil {
		return 0, r.fault(ctx, "create", err)
	}

	r.metrics.RecordCaseCreated()
	observability.LoggerFromContext(ctx).Info("case created", "case_id", id, "title", c.Title)
	return id, nil
}

// Update replaces the stored case wholesale. Last writer wins.
func (r *Repository) Update(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	if !c.HasID() {
		return 0, &domain.ValidationError{Field: "id", Message: "case has no identity"}
	}
	if err := c.Validate(); err != nil {
		return 0, err
	}

	id, err := r.store.PutCase(ctx, c.Clone())
	if err != nil {
		return 0, r.fault(ctx, "update", err)
	}
	return id, nil
}

func (r *Repository) Fetch(ctx context.Context, id domain.CaseID) (*domain.Case, error) {
	c, err := r.store.GetCase(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("case %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, r.fault(ctx, "fetch", err)
	}
	return c, nil
}

// List returns every case in store order.
func (r *Repository) List(ctx context.Context) ([]*domain.Case, error) {
	all, err := r.store.ListCases(ctx)
	if err != nil {
		return nil, r.fault(ctx, "list", err)
	}
	return all, nil
}

func (r *Repository) fault(ctx context.Context, op string, err error) error {
	r.metrics.RecordStorageFault(op)
	observability.LoggerFromContext(ctx).Error("case store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageFault, op, err)
}

// NewestFirst returns a copy of cases ordered by start time, most recent first.
func NewestFirst(all []*domain.Case) []*domain.Case {
	out := make([]*domain.Case, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}
