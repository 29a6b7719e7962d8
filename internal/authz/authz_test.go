package authz

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func TestAuthorize_EmbeddedPolicy(t *testing.T) {
	a, err := NewAuthorizer(Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeEnforce, a.Mode())

	tests := []struct {
		role   entity.Role
		object string
		method string
		want   bool
	}{
		{entity.RoleEmployee, "/api/v1/claims", "POST", true},
		{entity.RoleEmployee, "/api/v1/claims/mine", "GET", true},
		{entity.RoleEmployee, "/api/v1/claims/:id", "GET", true},
		{entity.RoleEmployee, "/api/v1/claims/:id/vote", "PUT", true},
		{entity.RoleEmployee, "/api/v1/claims", "GET", false},
		{entity.RoleEmployee, "/api/v1/claims/export", "GET", false},
		{entity.RoleEmployee, "/api/v1/claims/:id/rules", "PUT", false},
		{entity.RoleEmployee, "/api/v1/users", "POST", false},
		{entity.RoleEmployee, "/api/v1/claims/:id/vote", "POST", false},
		{entity.RoleManager, "/api/v1/claims/pending", "GET", true},
		{entity.RoleManager, "/api/v1/claims/:id/vote", "PUT", true},
		{entity.RoleManager, "/api/v1/users", "GET", false},
		{entity.RoleManager, "/api/v1/users/:id", "PUT", false},
		{entity.RoleAdmin, "/api/v1/users/:id", "PUT", true},
		{entity.RoleAdmin, "/api/v1/users", "POST", true},
		{entity.RoleAdmin, "/api/v1/claims/export", "GET", true},
		{entity.RoleAdmin, "/api/v1/claims/:id/rules", "PUT", true},
		{entity.RoleAdmin, "/api/v1/claims/:id", "DELETE", false},
		{entity.Role(""), "/api/v1/me", "GET", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+" "+tt.method+" "+tt.object, func(t *testing.T) {
			allowed, enforced, err := a.Authorize(tt.role, tt.object, tt.method)
			require.NoError(t, err)
			assert.True(t, enforced)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestAuthorize_Modes(t *testing.T) {
	shadow, err := NewAuthorizer(Config{Mode: ModeShadow})
	require.NoError(t, err)
	allowed, enforced, err := shadow.Authorize(entity.RoleEmployee, "/api/v1/users", "POST")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.False(t, enforced)

	disabled, err := NewAuthorizer(Config{Mode: ModeDisabled})
	require.NoError(t, err)
	allowed, enforced, err = disabled.Authorize(entity.RoleEmployee, "/api/v1/users", "POST")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.False(t, enforced)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeEnforce, mode)

	mode, err = ParseMode(" Shadow ")
	require.NoError(t, err)
	assert.Equal(t, ModeShadow, mode)

	_, err = ParseMode("off")
	assert.Error(t, err)
}

func TestNewAuthorizer_FromFiles(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.conf")
	policyPath := filepath.Join(dir, "policy.csv")
	require.NoError(t, os.WriteFile(modelPath, []byte(defaultModel), 0o644))
	require.NoError(t, os.WriteFile(policyPath, []byte("p, role:employee, /api/v1/me, GET\n"), 0o644))

	a, err := NewAuthorizer(Config{ModelPath: modelPath, PolicyPath: policyPath})
	require.NoError(t, err)

	allowed, _, err := a.Authorize(entity.RoleEmployee, "/api/v1/me", "GET")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = a.Authorize(entity.RoleEmployee, "/api/v1/claims", "POST")
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = NewAuthorizer(Config{ModelPath: modelPath})
	assert.Error(t, err)
}
