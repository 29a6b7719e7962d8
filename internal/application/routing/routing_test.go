package routing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const policyYAML = `
version: 1
policies:
  - name: large-travel
    company_id: 1
    condition: claim.category == "TRAVEL" && claim.amount >= 1000.0
    approvers: [20, 30, 40]
    percentage: 60
  - name: entertainment-cfo
    condition: claim.category == "ENTERTAINMENT"
    approvers: [20, 50]
    override_approver_id: 50
  - name: managers-go-to-director
    condition: submitter.role == "MANAGER"
    approvers: [60]
`

func newRouter(t *testing.T) *Router {
	t.Helper()
	policies, err := ParsePolicies([]byte(policyYAML))
	require.NoError(t, err)
	r, err := NewRouter(policies, nil)
	require.NoError(t, err)
	return r
}

func TestRouter_Route(t *testing.T) {
	r := newRouter(t)
	require.Equal(t, 3, r.Len())

	employee := &entity.User{ID: 7, CompanyID: 1, Role: entity.RoleEmployee}
	manager := &entity.User{ID: 8, CompanyID: 1, Role: entity.RoleManager}

	tests := []struct {
		name      string
		claim     *entity.Claim
		submitter *entity.User
		want      []int64
	}{
		{
			name:      "large travel",
			claim:     &entity.Claim{CompanyID: 1, Category: "TRAVEL", Amount: decimal.NewFromInt(2500)},
			submitter: employee,
			want:      []int64{20, 30, 40},
		},
		{
			name:      "small travel falls through",
			claim:     &entity.Claim{CompanyID: 1, Category: "TRAVEL", Amount: decimal.NewFromInt(50)},
			submitter: employee,
		},
		{
			name:      "company scoped policy skipped elsewhere",
			claim:     &entity.Claim{CompanyID: 2, Category: "TRAVEL", Amount: decimal.NewFromInt(2500)},
			submitter: &entity.User{ID: 9, CompanyID: 2, Role: entity.RoleEmployee},
		},
		{
			name:      "first match wins",
			claim:     &entity.Claim{CompanyID: 1, Category: "ENTERTAINMENT", Amount: decimal.NewFromInt(10)},
			submitter: manager,
			want:      []int64{20, 50},
		},
		{
			name:      "submitter condition",
			claim:     &entity.Claim{CompanyID: 1, Category: "MEAL", Amount: decimal.NewFromInt(10)},
			submitter: manager,
			want:      []int64{60},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override, err := r.Route(context.Background(), tt.claim, tt.submitter)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, override)
				return
			}
			require.NotNil(t, override)
			assert.Equal(t, tt.want, override.Approvers)
		})
	}
}

func TestRouter_OverrideFeedsAssembler(t *testing.T) {
	r := newRouter(t)

	override, err := r.Route(context.Background(),
		&entity.Claim{CompanyID: 1, Category: "ENTERTAINMENT", Amount: decimal.NewFromInt(10)},
		&entity.User{ID: 7, CompanyID: 1, Role: entity.RoleEmployee},
	)
	require.NoError(t, err)

	votes, rule, err := approval.AssembleChain(approval.Submission{SubmitterID: 7}, approval.OrgContext{}, override)
	require.NoError(t, err)
	assert.Len(t, votes, 2)
	require.NotNil(t, rule.OverrideApproverID)
	assert.Equal(t, int64(50), *rule.OverrideApproverID)
}

func TestRouter_OverrideIsCopied(t *testing.T) {
	r := newRouter(t)
	claim := &entity.Claim{CompanyID: 1, Category: "ENTERTAINMENT"}
	user := &entity.User{ID: 7, CompanyID: 1}

	first, err := r.Route(context.Background(), claim, user)
	require.NoError(t, err)
	first.Approvers[0] = 999
	*first.Rule.OverrideApproverID = 999

	second, err := r.Route(context.Background(), claim, user)
	require.NoError(t, err)
	assert.Equal(t, int64(20), second.Approvers[0])
	assert.Equal(t, int64(50), *second.Rule.OverrideApproverID)
}

func TestNewRouter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"bad syntax", Policy{Name: "p", Condition: "claim.amount >", Approvers: []int64{1}}},
		{"override outside chain", Policy{Name: "p", Approvers: []int64{1}, OverrideApproverID: ptr(2)}},
		{"percentage out of range", Policy{Name: "p", Approvers: []int64{1}, Percentage: 101}},
		{"missing name", Policy{Approvers: []int64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter([]Policy{tt.policy}, nil)
			assert.Error(t, err)
		})
	}
}

func TestRouter_NonBooleanCondition(t *testing.T) {
	r, err := NewRouter([]Policy{{Name: "p", Condition: "claim.amount", Approvers: []int64{1}}}, nil)
	require.NoError(t, err)

	_, err = r.Route(context.Background(), &entity.Claim{Amount: decimal.NewFromInt(1)}, &entity.User{})
	assert.ErrorContains(t, err, "did not return boolean")
}

func TestParsePolicies_Errors(t *testing.T) {
	_, err := ParsePolicies([]byte("version: 2\npolicies: []\n"))
	assert.ErrorContains(t, err, "unsupported version")

	_, err = ParsePolicies([]byte("version: 1\npolicies:\n  - name: a\n    approvers: [1]\n  - name: a\n    approvers: [2]\n"))
	assert.ErrorContains(t, err, "duplicate policy")

	_, err = ParsePolicies([]byte("version: 1\npolicies:\n  - name: a\n    approvers: [1, 1]\n"))
	assert.ErrorIs(t, err, approval.ErrInvalidRuleConfiguration)
}

func TestLoadPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(policyYAML), 0o644))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	assert.Len(t, policies, 3)

	_, err = LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func ptr(v int64) *int64 { return &v }
