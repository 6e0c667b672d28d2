package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/suma-triage/internal/domain"
)

func TestParseUserRole(t *testing.T) {
	tests := map[string]domain.UserRole{
		"physician":       domain.RolePhysician,
		"Paramedic":       domain.RoleParamedic,
		" nurse ":         domain.RoleNurse,
		"first_responder": domain.RoleFirstResponder,
		"First Responder": domain.RoleFirstResponder,
		"first-responder": domain.RoleFirstResponder,
	}
	for in, want := range tests {
		got, err := domain.ParseUserRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := domain.ParseUserRole("surgeon")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRolesAreValidAndLabelled(t *testing.T) {
	for _, r := range domain.Roles() {
		assert.True(t, r.Valid())
		assert.NotEqual(t, "Unknown", r.Label())
	}
	assert.False(t, domain.RoleUnknown.Valid())
}

func TestRoleJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Role domain.UserRole `json:"role"`
	}{domain.RoleFirstResponder})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"first_responder"}`, string(b))

	var out struct {
		Role domain.UserRole `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":""}`), &out))
	assert.Equal(t, domain.RoleUnknown, out.Role)
	assert.Error(t, json.Unmarshal([]byte(`{"role":"pilot"}`), &out))
}

func TestSenderText(t *testing.T) {
	s, err := domain.ParseSender("AI")
	require.NoError(t, err)
	assert.Equal(t, domain.SenderAI, s)
	assert.Equal(t, "user", domain.SenderUser.String())

	_, err = domain.ParseSender("bot")
	assert.Error(t, err)
}
