package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (TRIAGE_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) casesCol() *firestore.CollectionRef {
	return s.client.Collection("cases")
}

func (s *Store) caseDocRef(id domain.CaseID) *firestore.DocumentRef {
	return s.casesCol().Doc(strconv.FormatInt(int64(id), 10))
}

// counterDoc holds the next case id; ids are handed out inside a transaction.
func (s *Store) counterDoc() *firestore.DocumentRef {
	return s.client.Collection("counters").Doc("cases")
}

func (s *Store) prefDoc(key string) *firestore.DocumentRef {
	return s.client.Collection("preferences").Doc(key)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type caseDoc struct {
	ID          int64        `firestore:"id"`
	Role        string       `firestore:"role"`
	Age         string       `firestore:"age"`
	Sex         string       `firestore:"sex"`
	Background  string       `firestore:"background"`
	Medications string       `firestore:"medications"`
	Symptoms    string       `firestore:"symptoms"`
	Title       string       `firestore:"title"`
	StartTime   time.Time    `firestore:"start_time"`
	Chat        []messageDoc `firestore:"chat"`
}

type messageDoc struct {
	Sender    string    `firestore:"sender"`
	Text      string    `firestore:"text"`
	Timestamp time.Time `firestore:"timestamp"`
}

type counter struct {
	Next int64 `firestore:"next"`
}

type prefDoc struct {
	Value string `firestore:"value"`
}

func toCaseDoc(id domain.CaseID, c *domain.Case) caseDoc {
	role := ""
	if c.Role.Valid() {
		role = c.Role.String()
	}
	chat := make([]messageDoc, 0, len(c.Chat))
	for _, m := range c.Chat {
		chat = append(chat, messageDoc{Sender: m.Sender.String(), Text: m.Text, Timestamp: m.Timestamp})
	}
	return caseDoc{
		ID:          int64(id),
		Role:        role,
		Age:         c.Age,
		Sex:         c.Sex,
		Background:  c.Background,
		Medications: c.Medications,
		Symptoms:    c.Symptoms,
		Title:       c.Title,
		StartTime:   c.StartTime,
		Chat:        chat,
	}
}

func fromCaseDoc(doc caseDoc) (*domain.Case, error) {
	c := &domain.Case{
		ID:        domain.CaseID(doc.ID),
		Title:     doc.Title,
		StartTime: doc.StartTime,
		PatientData: domain.PatientData{
			Age:         doc.Age,
			Sex:         doc.Sex,
			Background:  doc.Background,
			Medications: doc.Medications,
			Symptoms:    doc.Symptoms,
		},
	}
	if doc.Role != "" {
		role, err := domain.ParseUserRole(doc.Role)
		if err != nil {
			return nil, err
		}
		c.Role = role
	}
	c.Chat = make([]domain.Message, 0, len(doc.Chat))
	for _, m := range doc.Chat {
		sender, err := domain.ParseSender(m.Sender)
		if err != nil {
			return nil, err
		}
		c.Chat = append(c.Chat, domain.Message{Sender: sender, Text: m.Text, Timestamp: m.Timestamp})
	}
	return c, nil
}

// ─────────────────────────────────────────
// CaseStore implementation
// ─────────────────────────────────────────

func (s *Store) AddCase(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	var assigned domain.CaseID

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		next := int64(1)
		snap, err := tx.Get(s.counterDoc())
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var cnt counter
			if err := snap.DataTo(&cnt); err != nil {
				return fmt.Errorf("decode counter: %w", err)
			}
			if cnt.Next > 0 {
				next = cnt.Next
			}
		}

		assigned = domain.CaseID(next)
		if err := tx.Set(s.counterDoc(), counter{Next: next + 1}); err != nil {
			return err
		}
		return tx.Create(s.caseDocRef(assigned), toCaseDoc(assigned, c))
	})
	if err != nil {
		return 0, fmt.Errorf("firestore AddCase: %w", err)
	}
	return assigned, nil
}

func (s *Store) PutCase(ctx context.Context, c *domain.Case) (domain.CaseID, error) {
	if c.ID == 0 {
		return 0, errors.New("firestore PutCase: case has no id")
	}
	// Set without merge replaces the document wholesale.
	if _, err := s.caseDocRef(c.ID).Set(ctx, toCaseDoc(c.ID, c)); err != nil {
		return 0, fmt.Errorf("firestore PutCase: %w", err)
	}
	return c.ID, nil
}

func (s *Store) GetCase(ctx context.Context, id domain.CaseID) (*domain.Case, error) {
	snap, err := s.caseDocRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore GetCase: %w", err)
	}

	var doc caseDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetCase decode: %w", err)
	}
	return fromCaseDoc(doc)
}

func (s *Store) ListCases(ctx context.Context) ([]*domain.Case, error) {
	iter := s.casesCol().OrderBy("id", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Case
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListCases: %w", err)
		}

		var doc caseDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode caseDoc: %w", err)
		}
		c, err := fromCaseDoc(doc)
		if err != nil {
			return nil, fmt.Errorf("decode caseDoc: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ─────────────────────────────────────────
// PreferenceStore implementation
// ─────────────────────────────────────────

func (s *Store) GetPreference(ctx context.Context, key string) (string, bool, error) {
	snap, err := s.prefDoc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("firestore GetPreference: %w", err)
	}

	var doc prefDoc
	if err := snap.DataTo(&doc); err != nil {
		return "", false, fmt.Errorf("firestore GetPreference decode: %w", err)
	}
	return doc.Value, true, nil
}

func (s *Store) SetPreference(ctx context.Context, key, value string) error {
	if _, err := s.prefDoc(key).Set(ctx, prefDoc{Value: value}); err != nil {
		return fmt.Errorf("firestore SetPreference: %w", err)
	}
	return nil
}

func (s *Store) DeletePreferences(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.prefDoc(k).Delete(ctx); err != nil {
			return fmt.Errorf("firestore DeletePreferences: %w", err)
		}
	}
	return nil
}

var (
	_ domain.CaseStore       = (*Store)(nil)
	_ domain.PreferenceStore = (*Store)(nil)
)
