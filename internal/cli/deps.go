package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/PabloGalante/suma-triage/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/suma-triage/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/suma-triage/internal/adapters/storage/memory"
	"github.com/PabloGalante/suma-triage/internal/adapters/storage/sqlstore"
	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/app/cases"
	"github.com/PabloGalante/suma-triage/internal/app/conversation"
	"github.com/PabloGalante/suma-triage/internal/app/emergency"
	"github.com/PabloGalante/suma-triage/internal/app/session"
	"github.com/PabloGalante/suma-triage/internal/config"
	"github.com/PabloGalante/suma-triage/internal/domain"
	"github.com/PabloGalante/suma-triage/internal/observability"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg        *config.Config
	registry   *prometheus.Registry
	metrics    *observability.Collector
	controller *session.Controller
	closers    []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// emergencyService builds the emergency action over the given device.
func (a *app) emergencyService(dialer emergency.Dialer, sharer emergency.Sharer, alerter emergency.Alerter) *emergency.Service {
	loc := emergency.FixedLocator{
		Location: emergency.Location{Latitude: a.cfg.DeviceLatitude, Longitude: a.cfg.DeviceLongitude},
		OK:       a.cfg.DeviceLocationSet,
	}
	return emergency.NewService(a.cfg.Locale, dialer, loc, sharer, alerter)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewCollector(a.registry)

	caseStore, prefs, err := a.openStorage(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	gateway, err := newGateway(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	gateway = llm.NewRateLimited(gateway, cfg.AIRequestsPerMinute)

	gate := access.NewGate(prefs, access.WithMetrics(a.metrics))
	repo := cases.NewRepository(caseStore, a.metrics)
	conv := conversation.NewManager(gateway, a.metrics)
	a.controller = session.NewController(gate, repo, conv, session.WithMetrics(a.metrics))
	return a, nil
}

func (a *app) openStorage(ctx context.Context) (domain.CaseStore, domain.PreferenceStore, error) {
	log := observability.WithFields("component", "storage", "backend", a.cfg.StorageBackend)

	switch a.cfg.StorageBackend {
	case "memory":
		log.Info("using in-memory storage")
		return memstore.NewCaseStore(), memstore.NewPreferenceStore(), nil

	case "sqlite", "postgres":
		d, dsn := sqlTarget(a.cfg)
		log.Info("using sql storage", "dialect", d.Name)
		st, err := sqlstore.Open(ctx, d, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s store: %w", d.Name, err)
		}
		a.closers = append(a.closers, st.Close)
		return st, st, nil

	case "firestore":
		log.Info("using firestore storage", "project", a.cfg.GCPProjectID)
		st, err := firestorestore.NewStore(ctx, a.cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("opening firestore store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		return st, st, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", a.cfg.StorageBackend)
}

func sqlTarget(cfg *config.Config) (sqlstore.Dialect, string) {
	if cfg.StorageBackend == "postgres" {
		return sqlstore.Postgres, cfg.DatabaseURL
	}
	return sqlstore.SQLite, cfg.SQLitePath
}

func newGateway(ctx context.Context, cfg *config.Config) (domain.ConversationGateway, error) {
	log := observability.WithFields("component", "assistant", "provider", cfg.LLMProvider)

	switch cfg.LLMProvider {
	case "mock":
		log.Info("using mock assistant")
		return llm.NewMockLLM(), nil
	case "gemini":
		log.Info("using gemini assistant", "model", cfg.ModelName)
		return llm.NewGeminiGateway(ctx, llm.GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Project:   cfg.GCPProjectID,
			Location:  cfg.GCPLocation,
			ModelName: cfg.ModelName,
		})
	case "openai":
		log.Info("using openai assistant", "model", cfg.OpenAIModel)
		return llm.NewOpenAIGateway(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}
