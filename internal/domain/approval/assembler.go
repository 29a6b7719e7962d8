package approval

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Submission identifies who is submitting a claim
type Submission struct {
	SubmitterID int64
}

// OrgContext is the slice of the org hierarchy the assembler needs
type OrgContext struct {
	// ManagerID is nil when the submitter has no direct manager
	ManagerID *int64
	// ManagerIsApprover mirrors the manager's approval-eligibility flag
	ManagerIsApprover bool
}

// ChainOverride is an administrator-supplied chain, used verbatim
type ChainOverride struct {
	Approvers []int64
	Rule      entity.Rule
}

// AssembleChain produces the initial approvers and rule of a new claim.
// An admin override wins, minus the submitter, who never reviews their own
// claim; a designated approver who is the submitter is dropped with them.
// If nothing of the override remains, or there is no override, an eligible
// direct manager is the only reviewer; otherwise the chain is empty.
func AssembleChain(sub Submission, org OrgContext, override *ChainOverride) ([]entity.Vote, entity.Rule, error) {
	if override != nil {
		reviewers, rule := withoutSubmitter(sub.SubmitterID, override)
		if len(reviewers) > 0 || len(override.Approvers) == 0 {
			votes, err := BuildChain(reviewers)
			if err != nil {
				return nil, entity.Rule{}, err
			}
			if err := ValidateRule(votes, rule); err != nil {
				return nil, entity.Rule{}, err
			}
			return votes, rule, nil
		}
	}

	if org.ManagerID != nil && *org.ManagerID != 0 && *org.ManagerID != sub.SubmitterID && org.ManagerIsApprover {
		return []entity.Vote{{
			ReviewerID: *org.ManagerID,
			Decision:   entity.DecisionUndecided,
			Sequence:   1,
		}}, entity.Rule{}, nil
	}

	return []entity.Vote{}, entity.Rule{}, nil
}

func withoutSubmitter(submitterID int64, override *ChainOverride) ([]int64, entity.Rule) {
	rule := override.Rule
	if rule.OverrideApproverID != nil {
		id := *rule.OverrideApproverID
		rule.OverrideApproverID = &id
		if submitterID != 0 && id == submitterID {
			rule.OverrideApproverID = nil
		}
	}

	reviewers := make([]int64, 0, len(override.Approvers))
	for _, id := range override.Approvers {
		if submitterID != 0 && id == submitterID {
			continue
		}
		reviewers = append(reviewers, id)
	}
	return reviewers, rule
}

// BuildChain turns an ordered reviewer list into undecided votes with
// sequences assigned by position, starting at 1.
func BuildChain(reviewers []int64) ([]entity.Vote, error) {
	seen := make(map[int64]bool, len(reviewers))
	votes := make([]entity.Vote, 0, len(reviewers))

	for i, id := range reviewers {
		if id <= 0 {
			return nil, fmt.Errorf("%w: invalid reviewer id %d at position %d", ErrInvalidRuleConfiguration, id, i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: reviewer %d listed more than once", ErrInvalidRuleConfiguration, id)
		}
		seen[id] = true

		votes = append(votes, entity.Vote{
			ReviewerID: id,
			Decision:   entity.DecisionUndecided,
			Sequence:   i + 1,
		})
	}
	return votes, nil
}

// ValidateRule checks a rule against the chain it will be attached to
func ValidateRule(approvers []entity.Vote, rule entity.Rule) error {
	if rule.Percentage < 0 || rule.Percentage > 100 {
		return fmt.Errorf("%w: percentage %.2f outside [0,100]", ErrInvalidRuleConfiguration, rule.Percentage)
	}

	if rule.HasOverride() {
		for _, v := range approvers {
			if v.ReviewerID == *rule.OverrideApproverID {
				return nil
			}
		}
		return fmt.Errorf("%w: designated approver %d is not in the chain", ErrInvalidRuleConfiguration, *rule.OverrideApproverID)
	}
	return nil
}
