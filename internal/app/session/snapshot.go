package session

import (
	"github.com/PabloGalante/suma-triage/internal/app/access"
	"github.com/PabloGalante/suma-triage/internal/domain"
)

// Phase is where the controller is in the case lifecycle.
type Phase int

const (
	PhaseActivation Phase = iota
	PhaseRoleSelection
	PhaseIntake
	PhaseAwaitingInitialReply
	PhaseActive
	PhaseResuming
)

var phaseNames = map[Phase]string{
	PhaseActivation:           "activation",
	PhaseRoleSelection:        "role_selection",
	PhaseIntake:               "intake",
	PhaseAwaitingInitialReply: "awaiting_initial_reply",
	PhaseActive:               "active",
	PhaseResuming:             "resuming",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Snapshot is an immutable view of the controller, safe to render or serialize.
type Snapshot struct {
	Phase   Phase              `json:"phase"`
	Loading bool               `json:"loading"`
	Intake  domain.PatientData `json:"intake"`
	Case    *domain.Case       `json:"case,omitempty"`
	Error   string             `json:"error,omitempty"`
	Warning string             `json:"warning,omitempty"`
	Access  access.Status      `json:"access"`
}
