package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// startTimeLayout is fixed width so the start_time index sorts chronologically as text.
const startTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements domain.CaseStore and domain.PreferenceStore on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects, runs migrations and returns a ready Store.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	if d.Name == SQLite.Name {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	if err := RunMigrations(d, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name == SQLite.Name {
		// one writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db, dialect: d}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type chatRow struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeChat(msgs []domain.Message) (string, error) {
	rows := make([]chatRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, chatRow{Sender: m.Sender.String(), Text: m.Text, Timestamp: m.Timestamp})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeChat(raw string) ([]domain.Message, error) {
	var rows []chatRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		sender, err := domain.ParseSender(r.Sender)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, domain.Message{Sender: sender, Text: r.Text, Timestamp: r.Timestamp})
	}
	return msgs, nil
}

func roleColumn(r domain.UserRole) string {
	if !r.Valid() {
		return ""
	}
	return r.String()
}

// ─────────────────────────────────────────
// CaseStore implementation
// ─────────────────────────────────────────

func (s *Store) AddCase(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	chat, err := encodeChat(c.Chat)
	if err != nil {
		return 0, fmt.Errorf("encode chat: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO cases (role, age, sex, background, medications, symptoms, title, start_time, chat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		roleColumn(c.Role), c.Age, c.Sex, c.Background, c.Medications, c.Symptoms,
		c.Title, c.StartTime.UTC().Format(startTimeLayout), chat,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert case: %w", err)
	}
	return domain.CaseID(id), nil
}

func (s *Store) PutCase(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	if c.ID == 0 {
		return 0, errors.New("put requires a case with an id")
	}
	chat, err := encodeChat(c.Chat)
	if err != nil {
		return 0, fmt.Errorf("encode chat: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin put: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO cases (id, role, age, sex, background, medications, symptoms, title, start_time, chat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   role = excluded.role,
		   age = excluded.age,
		   sex = excluded.sex,
		   background = excluded.background,
		   medications = excluded.medications,
		   symptoms = excluded.symptoms,
		   title = excluded.title,
		   start_time = excluded.start_time,
		   chat = excluded.chat`),
		int64(c.ID), roleColumn(c.Role), c.Age, c.Sex, c.Background, c.Medications, c.Symptoms,
		c.Title, c.StartTime.UTC().Format(startTimeLayout), chat,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to put case: %w", err)
	}
	if s.dialect.syncIDs != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.syncIDs); err != nil {
			return 0, fmt.Errorf("failed to sync case ids: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit put: %w", err)
	}
	return c.ID, nil
}

const selectCase = `SELECT id, role, age, sex, background, medications, symptoms, title, start_time, chat FROM cases`

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (*domain.Case, error) {
	var (
		id        int64
		role      string
		startTime string
		chat      string
		c         domain.Case
	)
	if err := row.Scan(&id, &role, &c.Age, &c.Sex, &c.Background, &c.Medications, &c.Symptoms,
		&c.Title, &startTime, &chat); err != nil {
		return nil, err
	}

	c.ID = domain.CaseID(id)
	if role != "" {
		r, err := domain.ParseUserRole(role)
		if err != nil {
			return nil, fmt.Errorf("decode role: %w", err)
		}
		c.Role = r
	}
	ts, err := time.Parse(startTimeLayout, startTime)
	if err != nil {
		return nil, fmt.Errorf("decode start_time: %w", err)
	}
	c.StartTime = ts
	if c.Chat, err = decodeChat(chat); err != nil {
		return nil, fmt.Errorf("decode chat: %w", err)
	}
	return &c, nil
}

func (s *Store) GetCase(ctx context.Context, id domain.CaseID) (*domain.Case, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(selectCase+` WHERE id = ?`), int64(id))
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// ListCases returns cases in key order, like an object store getAll.
func (s *Store) ListCases(ctx context.Context) ([]*domain.Case, error) {
	rows, err := s.db.QueryContext(ctx, selectCase+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cases: %w", err)
	}
	return out, nil
}

// ─────────────────────────────────────────
// PreferenceStore implementation
// ─────────────────────────────────────────

func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT value FROM preferences WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO preferences (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set preference %s: %w", key, err)
	}
	return nil
}

func (s *Store) DeletePreferences(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM preferences WHERE key = ?`), k); err != nil {
			return fmt.Errorf("failed to delete preference %s: %w", k, err)
		}
	}
	return nil
}

// compile-time interface checks
var (
	_ domain.CaseStore       = (*Store)(nil)
	_ domain.PreferenceStore = (*Store)(nil)
)
