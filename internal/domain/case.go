package domain

import (
	"fmt"
	"strings"
	"time"
)

// PatientData is what the user enters on the intake form.
type PatientData struct {
	Role        UserRole `json:"role"`
	Age         string   `json:"age"`
	Sex         string   `json:"sex"`
	Background  string   `json:"background"`
	Medications string   `json:"medications"`
	Symptoms    string   `json:"symptoms"`
}

func (p *PatientData) SetRole(r UserRole) { p.Role = r }
func (p *PatientData) SetAge(v string) { p.Age = v }
func (p *PatientData) SetSex(v string) { p.Sex = v }
func (p *PatientData) SetBackground(v string) { p.Background = v }
func (p *PatientData) SetMedications(v string) { p.Medications = v }
func (p *PatientData) SetSymptoms(v string) { p.Symptoms = v }

// ValidateIntake checks the minimum an intake needs before asking the assistant:
// age and symptoms must not be blank.
func (p PatientData) ValidateIntake() error {
	if strings.TrimSpace(p.Age) == "" {
		return &ValidationError{Field: "age", Message: "age and symptoms are required"}
	}
	if strings.TrimSpace(p.Symptoms) == "" {
		return &ValidationError{Field: "symptoms", Message: "age and symptoms are required"}
	}
	return nil
}

// Summary renders the one-line patient summary used in report headers and listings.
func (p PatientData) Summary() string {
	return fmt.Sprintf("%s | %s %s | %s | %s | %s",
		p.Role.Label(), p.Sex, p.Age, p.Background, p.Medications, p.Symptoms)
}

// Message is a single turn in a case transcript.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

func NewMessage(sender Sender, text string, at time.Time) Message {
	return Message{Sender: sender, Text: text, Timestamp: at.UTC()}
}

// Case is one clinical consultation: patient data plus the full transcript.
type Case struct {
	ID CaseID `json:"id,omitempty"`
	PatientData
	Title     string    `json:"title"`
	StartTime Timestamp `json:"startTime"`
	Chat      []Message `json:"chat"`
}

// NewCase builds an unsaved case. Title and StartTime are fixed here and never change.
func NewCase(data PatientData, startedAt time.Time) *Case {
	return &Case{
		PatientData: data,
		Title:       TitleFromSymptoms(data.Symptoms),
		StartTime:   startedAt.UTC(),
		Chat:        []Message{},
	}
}

// TitleFromSymptoms takes the first comma-delimited token of the symptoms, trimmed.
func TitleFromSymptoms(symptoms string) string {
	first, _, _ := strings.Cut(symptoms, ",")
	return strings.TrimSpace(first)
}

func (c *Case) HasID() bool { return c != nil && c.ID != 0 }

// Append adds a message to the transcript. Timestamps never go backwards within a case.
func (c *Case) Append(m Message) {
	if n := len(c.Chat); n > 0 && m.Timestamp.Before(c.Chat[n-1].Timestamp) {
		m.Timestamp = c.Chat[n-1].Timestamp
	}
	c.Chat = append(c.Chat, m)
}

// Clone returns a deep copy; chat slices are never shared between copies.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Chat = make([]Message, len(c.Chat))
	copy(out.Chat, c.Chat)
	return &out
}

// Validate checks the transcript invariant: a non-empty chat opens with an AI turn.
func (c *Case) Validate() error {
	if len(c.Chat) > 0 && c.Chat[0].Sender != SenderAI {
		return &ValidationError{Field: "chat", Message: "transcript must start with an assistant message"}
	}
	return nil
}
