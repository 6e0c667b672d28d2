package sqlstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/suma-triage/internal/adapters/storage/sqlstore"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

func openSQLite(t *testing.T) (*sqlstore.Store, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "suma.db")
	s, err := sqlstore.Open(context.Background(), sqlstore.SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dsn
}

func sampleCase(start time.Time) *domain.Case {
	c := domain.NewCase(domain.PatientData{
		Role:        domain.RoleParamedic,
		Age:         "72",
		Sex:         "F",
		Background:  "diabetes",
		Medications: "metformin",
		Symptoms:    "dizziness, sweating",
	}, start)
	c.Append(domain.NewMessage(domain.SenderAI, "1. Check glucose.", start))
	return c
}

func TestSQLiteCaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openSQLite(t)
	start := time.Date(2025, 6, 1, 8, 0, 0, 123456789, time.UTC)

	id, err := s.AddCase(ctx, sampleCase(start))
	require.NoError(t, err)
	assert.Equal(t, domain.CaseID(1), id)

	got, err := s.GetCase(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.RoleParamedic, got.Role)
	assert.Equal(t, "dizziness", got.Title)
	assert.Equal(t, "metformin", got.Medications)
	assert.True(t, start.Equal(got.StartTime))
	require.Len(t, got.Chat, 1)
	assert.Equal(t, domain.SenderAI, got.Chat[0].Sender)
	assert.Equal(t, "1. Check glucose.", got.Chat[0].Text)
}

func TestSQLitePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := openSQLite(t)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	id, err := s.AddCase(ctx, sampleCase(start))
	require.NoError(t, err)

	c, err := s.GetCase(ctx, id)
	require.NoError(t, err)
	c.Append(domain.NewMessage(domain.SenderUser, "glucose is 45", start.Add(time.Minute)))
	c.Append(domain.NewMessage(domain.SenderAI, "Give oral glucose.", start.Add(2*time.Minute)))

	for i := 0; i < 2; i++ {
		_, err = s.PutCase(ctx, c)
		require.NoError(t, err)
	}

	got, err := s.GetCase(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Chat, 3)
	assert.Equal(t, domain.SenderUser, got.Chat[1].Sender)

	all, err := s.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPutWithExplicitIDDoesNotCollideWithAdd(t *testing.T) {
	ctx := context.Background()
	s, _ := openSQLite(t)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	imported := sampleCase(start)
	imported.ID = 7
	_, err := s.PutCase(ctx, imported)
	require.NoError(t, err)

	id, err := s.AddCase(ctx, sampleCase(start.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, domain.CaseID(8), id)

	all, err := s.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLitePutWithoutID(t *testing.T) {
	s, _ := openSQLite(t)
	_, err := s.PutCase(context.Background(), sampleCase(time.Now()))
	require.Error(t, err)
}

func TestSQLiteGetMissing(t *testing.T) {
	s, _ := openSQLite(t)
	_, err := s.GetCase(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteListInKeyOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := openSQLite(t)
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	// later start first, so key order and time order differ
	_, err := s.AddCase(ctx, sampleCase(base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = s.AddCase(ctx, sampleCase(base))
	require.NoError(t, err)

	all, err := s.ListCases(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.CaseID(1), all[0].ID)
	assert.Equal(t, domain.CaseID(2), all[1].ID)
}

func TestSQLitePreferences(t *testing.T) {
	ctx := context.Background()
	s, _ := openSQLite(t)

	_, ok, err := s.GetPreference(ctx, domain.PrefUserRole)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPreference(ctx, domain.PrefUserRole, "nurse"))
	require.NoError(t, s.SetPreference(ctx, domain.PrefUserRole, "physician"))
	v, ok, err := s.GetPreference(ctx, domain.PrefUserRole)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "physician", v)

	require.NoError(t, s.DeletePreferences(ctx, domain.PrefUserRole))
	_, ok, err = s.GetPreference(ctx, domain.PrefUserRole)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, dsn := openSQLite(t)
	_, err := s.AddCase(ctx, sampleCase(time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlstore.Open(ctx, sqlstore.SQLite, dsn)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	id, err := reopened.AddCase(ctx, sampleCase(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.CaseID(2), id)
}

// Set TRIAGE_TEST_DATABASE_URL to run against a disposable Postgres database.
func TestPostgresPutAdvancesSequence(t *testing.T) {
	dsn := os.Getenv("TRIAGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRIAGE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, sqlstore.Postgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	first, err := s.AddCase(ctx, sampleCase(start))
	require.NoError(t, err)

	imported := sampleCase(start)
	imported.ID = first + 50
	_, err = s.PutCase(ctx, imported)
	require.NoError(t, err)

	next, err := s.AddCase(ctx, sampleCase(start))
	require.NoError(t, err)
	assert.Greater(t, int64(next), int64(imported.ID))
}
