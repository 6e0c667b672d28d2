package domain

import (
	"fmt"
	"strings"
	"time"
)

// CaseID is the store-assigned identity of a Case. The zero value means "not persisted yet".
type CaseID int64

type Timestamp = time.Time

// UserRole is the professional role of the person using the assistant.
type UserRole uint8

const (
	RoleUnknown UserRole = iota
	RolePhysician
	RoleParamedic
	RoleNurse
	RoleFirstResponder
)

var roleSlugs = map[UserRole]string{
	RolePhysician:      "physician",
	RoleParamedic:      "paramedic",
	RoleNurse:          "nurse",
	RoleFirstResponder: "first_responder",
}

var roleLabels = map[UserRole]string{
	RolePhysician:      "Physician",
	RoleParamedic:      "Paramedic",
	RoleNurse:          "Nurse",
	RoleFirstResponder: "First Responder",
}

// Roles lists every selectable role, in display order.
func Roles() []UserRole {
	return []UserRole{RolePhysician, RoleParamedic, RoleNurse, RoleFirstResponder}
}

func (r UserRole) Valid() bool {
	_, ok := roleSlugs[r]
	return ok
}

// String returns the stable slug used for persistence.
func (r UserRole) String() string {
	if s, ok := roleSlugs[r]; ok {
		return s
	}
	return "unknown"
}

// Label returns the human readable role name.
func (r UserRole) Label() string {
	if s, ok := roleLabels[r]; ok {
		return s
	}
	return "Unknown"
}

// ParseUserRole accepts a slug or a label, case-insensitively.
func ParseUserRole(s string) (UserRole, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for r, slug := range roleSlugs {
		if norm == slug {
			return r, nil
		}
	}
	return RoleUnknown, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
}

func (r UserRole) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return []byte(""), nil
	}
	return []byte(r.String()), nil
}

func (r *UserRole) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = RoleUnknown
		return nil
	}
	parsed, err := ParseUserRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Sender identifies who authored a Message.
type Sender uint8

const (
	SenderUser Sender = iota + 1
	SenderAI
)

func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderAI:
		return "ai"
	default:
		return "unknown"
	}
}

func ParseSender(s string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return SenderUser, nil
	case "ai":
		return SenderAI, nil
	default:
		return 0, fmt.Errorf("unknown sender %q", s)
	}
}

func (s Sender) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sender) UnmarshalText(b []byte) error {
	parsed, err := ParseSender(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
