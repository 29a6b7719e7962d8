package approval

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Open attaches the assembled chain and rule to a new claim and resolves it
// if nothing is left to adjudicate. The draft is not modified.
func Open(draft *entity.Claim, approvers []entity.Vote, rule entity.Rule, at time.Time) (*entity.Claim, error) {
	if err := ValidateRule(approvers, rule); err != nil {
		return nil, err
	}

	claim := draft.Clone()
	claim.Status = entity.ClaimStatusPending
	claim.Approvers = append([]entity.Vote{}, approvers...)
	claim.Rule = rule
	claim.ResolvedAt = nil

	if err := commit(claim, workflow.TriggerVote, at); err != nil {
		return nil, err
	}
	return claim, nil
}

// ApplyVote records one reviewer's decision and commits the resulting status.
// It is the only path that moves a claim out of PENDING after submission.
// On error the input claim is left untouched.
func ApplyVote(claim *entity.Claim, reviewerID int64, decision entity.Decision, comment string, at time.Time) (*entity.Claim, error) {
	if err := checkStatus(claim); err != nil {
		return nil, err
	}
	if !decision.IsFinal() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	if err := checkVote(claim, reviewerID); err != nil {
		return nil, fmt.Errorf("reviewer %d on claim %d: %w", reviewerID, claim.ID, err)
	}

	updated := claim.Clone()
	vote := updated.FindVote(reviewerID)
	vote.Decision = decision
	vote.Comment = comment
	decidedAt := at
	vote.DecidedAt = &decidedAt

	if err := commit(updated, workflow.TriggerVote, at); err != nil {
		return nil, err
	}
	return updated, nil
}

// Reconfigure replaces the chain and rule of a pending claim. Every vote is
// reset to undecided. An empty replacement chain resolves the claim. The
// submitter may not appear in the replacement chain.
func Reconfigure(claim *entity.Claim, reviewers []int64, rule entity.Rule, at time.Time) (*entity.Claim, error) {
	if err := checkStatus(claim); err != nil {
		return nil, err
	}
	machine := workflow.NewClaimMachine(workflow.State(claim.Status))
	if !machine.CanFire(workflow.TriggerReconfigure) {
		return nil, fmt.Errorf("claim %d is %s: %w", claim.ID, claim.Status, ErrClaimAlreadyTerminal)
	}

	for _, id := range reviewers {
		if id == claim.SubmitterID {
			return nil, fmt.Errorf("%w: submitter %d cannot review their own claim", ErrInvalidRuleConfiguration, id)
		}
	}
	votes, err := BuildChain(reviewers)
	if err != nil {
		return nil, err
	}
	if err := ValidateRule(votes, rule); err != nil {
		return nil, err
	}

	updated := claim.Clone()
	updated.Approvers = votes
	updated.Rule = rule
	if rule.OverrideApproverID != nil {
		id := *rule.OverrideApproverID
		updated.Rule.OverrideApproverID = &id
	}

	if err := commit(updated, workflow.TriggerReconfigure, at); err != nil {
		return nil, err
	}
	return updated, nil
}

// commit evaluates the claim and drives the state machine. neutral is the
// trigger fired when the evaluation leaves the claim pending.
func commit(claim *entity.Claim, neutral workflow.Trigger, at time.Time) error {
	if err := checkStatus(claim); err != nil {
		return err
	}
	machine := workflow.NewClaimMachine(workflow.State(claim.Status))

	trigger := neutral
	switch Evaluate(claim) {
	case entity.ClaimStatusApproved:
		trigger = workflow.TriggerApprove
	case entity.ClaimStatusRejected:
		trigger = workflow.TriggerReject
	}

	if err := machine.Fire(trigger); err != nil {
		return fmt.Errorf("claim %d: %w: %v", claim.ID, ErrClaimAlreadyTerminal, err)
	}

	claim.Status = entity.ClaimStatus(machine.State())
	if claim.Status.IsTerminal() {
		resolvedAt := at
		claim.ResolvedAt = &resolvedAt
	}
	claim.UpdatedAt = at
	return nil
}

// checkStatus keeps unknown states away from the state machine builder
func checkStatus(claim *entity.Claim) error {
	if !workflow.State(claim.Status).IsValid() {
		return fmt.Errorf("claim %d: %w %q", claim.ID, ErrUnknownStatus, claim.Status)
	}
	return nil
}
