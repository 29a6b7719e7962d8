package approval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func int64Ptr(v int64) *int64 { return &v }

func chain(decisions ...entity.Decision) []entity.Vote {
	votes := make([]entity.Vote, len(decisions))
	for i, d := range decisions {
		votes[i] = entity.Vote{ReviewerID: int64(i + 1), Decision: d, Sequence: i + 1}
	}
	return votes
}

const (
	u = entity.DecisionUndecided
	a = entity.DecisionApproved
	r = entity.DecisionRejected
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		votes []entity.Vote
		rule  entity.Rule
		want  entity.ClaimStatus
	}{
		{"empty chain approves", chain(), entity.Rule{}, entity.ClaimStatusApproved},
		{"single undecided stays pending", chain(u), entity.Rule{}, entity.ClaimStatusPending},
		{"partial approval stays pending", chain(a, u), entity.Rule{}, entity.ClaimStatusPending},
		{"unanimous approval", chain(a, a, a), entity.Rule{}, entity.ClaimStatusApproved},
		{"any rejection rejects", chain(a, r, u), entity.Rule{}, entity.ClaimStatusRejected},
		{
			name:  "rejection beats designated approver",
			votes: chain(a, r),
			rule:  entity.Rule{OverrideApproverID: int64Ptr(1)},
			want:  entity.ClaimStatusRejected,
		},
		{
			name:  "rejection beats percentage",
			votes: chain(a, a, a, a, r),
			rule:  entity.Rule{Percentage: 60},
			want:  entity.ClaimStatusRejected,
		},
		{
			name:  "designated approver short-circuits",
			votes: chain(u, u, a),
			rule:  entity.Rule{OverrideApproverID: int64Ptr(3)},
			want:  entity.ClaimStatusApproved,
		},
		{
			name:  "designated approver undecided falls through",
			votes: chain(a, u, u),
			rule:  entity.Rule{OverrideApproverID: int64Ptr(3)},
			want:  entity.ClaimStatusPending,
		},
		{
			name:  "percentage met counting undecided in denominator",
			votes: chain(a, u),
			rule:  entity.Rule{Percentage: 50},
			want:  entity.ClaimStatusApproved,
		},
		{
			name:  "percentage not met",
			votes: chain(a, u, u),
			rule:  entity.Rule{Percentage: 50},
			want:  entity.ClaimStatusPending,
		},
		{
			name:  "percentage 100 equals unanimous",
			votes: chain(a, a),
			rule:  entity.Rule{Percentage: 100},
			want:  entity.ClaimStatusApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.votes, tt.rule))
		})
	}
}

func TestDecide_SixtyPercentOfFive(t *testing.T) {
	rule := entity.Rule{Percentage: 60}

	for approved := 0; approved <= 5; approved++ {
		decisions := make([]entity.Decision, 5)
		for i := range decisions {
			decisions[i] = u
			if i < approved {
				decisions[i] = a
			}
		}

		want := entity.ClaimStatusPending
		if approved >= 3 {
			want = entity.ClaimStatusApproved
		}
		assert.Equal(t, want, Decide(chain(decisions...), rule), "approved=%d", approved)
	}
}

func TestDecide_Idempotent(t *testing.T) {
	votes := chain(a, u, u)
	rule := entity.Rule{Percentage: 30}

	first := Decide(votes, rule)
	second := Decide(votes, rule)
	assert.Equal(t, first, second)
	assert.Equal(t, chain(a, u, u), votes, "Decide must not modify the votes")
}

func TestCheckVote(t *testing.T) {
	pending := &entity.Claim{ID: 7, Status: entity.ClaimStatusPending, Approvers: chain(a, u, u)}

	tests := []struct {
		name     string
		claim    *entity.Claim
		reviewer int64
		wantErr  error
	}{
		{"next in sequence", pending, 2, nil},
		{"later reviewer blocked", pending, 3, ErrOutOfSequence},
		{"reviewer already voted", pending, 1, ErrAlreadyVoted},
		{"stranger", pending, 99, ErrReviewerNotInChain},
		{
			name:     "terminal claim",
			claim:    &entity.Claim{Status: entity.ClaimStatusApproved, Approvers: chain(a)},
			reviewer: 1,
			wantErr:  ErrClaimAlreadyTerminal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckVote(tt.claim, tt.reviewer)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				assert.True(t, CanVote(tt.claim, tt.reviewer))
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, CanVote(tt.claim, tt.reviewer))
		})
	}
}

func TestNextReviewers(t *testing.T) {
	claim := &entity.Claim{Status: entity.ClaimStatusPending, Approvers: chain(a, u, u)}
	assert.Equal(t, []int64{2}, NextReviewers(claim))

	claim.Status = entity.ClaimStatusApproved
	assert.Empty(t, NextReviewers(claim))
}

func TestOpen_EmptyChainApprovedImmediately(t *testing.T) {
	now := time.Now()
	draft := &entity.Claim{ID: 1, SubmitterID: 10}

	votes, rule, err := AssembleChain(Submission{SubmitterID: 10}, OrgContext{}, nil)
	require.NoError(t, err)

	claim, err := Open(draft, votes, rule, now)
	require.NoError(t, err)

	assert.Equal(t, entity.ClaimStatusApproved, claim.Status)
	assert.Empty(t, claim.Approvers)
	require.NotNil(t, claim.ResolvedAt)
	assert.Equal(t, now, *claim.ResolvedAt)
	assert.Equal(t, entity.ClaimStatus(""), draft.Status, "draft must not be modified")
}

func TestOpen_ManagerChainStaysPending(t *testing.T) {
	votes, rule, err := AssembleChain(
		Submission{SubmitterID: 10},
		OrgContext{ManagerID: int64Ptr(20), ManagerIsApprover: true},
		nil,
	)
	require.NoError(t, err)

	claim, err := Open(&entity.Claim{ID: 1}, votes, rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, entity.ClaimStatusPending, claim.Status)
	assert.Nil(t, claim.ResolvedAt)
}
