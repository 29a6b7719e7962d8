package approval

import (
	"sort"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Decide computes the status implied by the current votes and rule.
// Precedence: any rejection, designated approver, percentage threshold,
// unanimous approval, empty chain; otherwise the claim stays pending.
func Decide(approvers []entity.Vote, rule entity.Rule) entity.ClaimStatus {
	approved := 0
	for _, v := range approvers {
		switch v.Decision {
		case entity.DecisionRejected:
			return entity.ClaimStatusRejected
		case entity.DecisionApproved:
			approved++
		}
	}

	if rule.HasOverride() {
		for _, v := range approvers {
			if v.ReviewerID == *rule.OverrideApproverID && v.Decision == entity.DecisionApproved {
				return entity.ClaimStatusApproved
			}
		}
	}

	total := len(approvers)

	// undecided votes count in the denominator
	if rule.Percentage > 0 && total > 0 {
		if float64(approved)*100 >= rule.Percentage*float64(total) {
			return entity.ClaimStatusApproved
		}
	}

	if total > 0 && approved == total {
		return entity.ClaimStatusApproved
	}

	if total == 0 {
		return entity.ClaimStatusApproved
	}

	return entity.ClaimStatusPending
}

// Evaluate is Decide applied to a claim
func Evaluate(claim *entity.Claim) entity.ClaimStatus {
	return Decide(claim.Approvers, claim.Rule)
}

// CanVote reports whether the reviewer may cast a vote on the claim now
func CanVote(claim *entity.Claim, reviewerID int64) bool {
	return checkVote(claim, reviewerID) == nil
}

// CheckVote is CanVote with the reason for refusal
func CheckVote(claim *entity.Claim, reviewerID int64) error {
	return checkVote(claim, reviewerID)
}

func checkVote(claim *entity.Claim, reviewerID int64) error {
	if claim.IsTerminal() {
		return ErrClaimAlreadyTerminal
	}

	vote := claim.FindVote(reviewerID)
	if vote == nil {
		return ErrReviewerNotInChain
	}
	if vote.Decision.IsFinal() {
		return ErrAlreadyVoted
	}

	for _, other := range claim.Approvers {
		if other.Sequence < vote.Sequence && !other.Decision.IsFinal() {
			return ErrOutOfSequence
		}
	}
	return nil
}

// NextReviewers returns the reviewers allowed to vote now, in sequence order
func NextReviewers(claim *entity.Claim) []int64 {
	if claim.IsTerminal() {
		return nil
	}

	votes := append([]entity.Vote(nil), claim.Approvers...)
	sort.Slice(votes, func(i, j int) bool { return votes[i].Sequence < votes[j].Sequence })

	var next []int64
	for _, v := range votes {
		if CanVote(claim, v.ReviewerID) {
			next = append(next, v.ReviewerID)
		}
	}
	return next
}
