package conversation

import (
	"strings"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

// SystemInstruction is sent with every conversation, new or resumed.
const SystemInstruction = `You are "Suma", an AI assistant for health professionals working as first responders.
Give clear, concise and prioritized guidance based on the information provided.
You do not replace professional clinical judgment.
Your first answer MUST be a numbered list of immediate actions to consider, citing reliable
sources such as the WHO, the AHA or the Red Cross when appropriate.
In the follow-up chat, answer specific questions briefly and directly.`

// Texts used when the assistant answers with no text at all.
const (
	FallbackRecommendation = "Could not get a recommendation."
	FallbackResponse       = "Could not get a response."
)

// ApologyText is shown locally when a follow-up message fails.
const ApologyText = "Sorry, an error occurred."

// BuildIntakePrompt renders the first user turn of a case. Resuming a case
// rebuilds exactly this text, so it must depend only on the patient data.
func BuildIntakePrompt(p domain.PatientData) string {
	var b strings.Builder
	b.WriteString("PATIENT DATA:\n")
	b.WriteString("- Professional role: " + p.Role.Label() + "\n")
	b.WriteString("- Age: " + p.Age + "\n")
	b.WriteString("- Sex: " + p.Sex + "\n")
	b.WriteString("- Background: " + p.Background + "\n")
	b.WriteString("- Current medications: " + p.Medications + "\n")
	b.WriteString("- Main symptoms and signs: " + p.Symptoms + "\n")
	b.WriteString("\nQUESTION: WHAT SHOULD I DO?\n")
	b.WriteString("\nANSWER (MUST BE A NUMBERED LIST of immediate, prioritized actions):\n")
	return b.String()
}

// toTurns maps a stored transcript onto gateway turns.
func toTurns(chat []domain.Message) []domain.Turn {
	turns := make([]domain.Turn, 0, len(chat))
	for _, m := range chat {
		role := domain.TurnModel
		if m.Sender == domain.SenderUser {
			role = domain.TurnUser
		}
		turns = append(turns, domain.Turn{Role: role, Text: m.Text})
	}
	return turns
}
