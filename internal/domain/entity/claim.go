package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim is a submitted expense routed through a chain of reviewers
type Claim struct {
	ID          int64 `json:"id"`
	SubmitterID int64 `json:"submitter_id"`
	CompanyID   int64 `json:"company_id"`

	// Amount is normalized to the company currency
	Amount decimal.Decimal `json:"amount"`

	// Set only when the claim was submitted in a foreign currency
	OriginalAmount   *decimal.Decimal `json:"original_amount,omitempty"`
	OriginalCurrency string           `json:"original_currency,omitempty"`

	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	ExpenseDate time.Time `json:"expense_date"`

	Status    ClaimStatus `json:"status"`
	Approvers []Vote      `json:"approvers"`
	Rule      Rule        `json:"rule"`

	AdvisoryNote string `json:"advisory_note,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// LastRemindedAt is when reviewers were last reminded of the claim
	LastRemindedAt *time.Time `json:"last_reminded_at,omitempty"`
}

// Vote is one reviewer's slot in a claim's approval chain
type Vote struct {
	ReviewerID int64      `json:"reviewer_id"`
	Decision   Decision   `json:"decision"`
	Comment    string     `json:"comment,omitempty"`
	Sequence   int        `json:"sequence"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// Rule holds the completion parameters attached to a single claim.
// A zero Percentage disables the percentage rule.
type Rule struct {
	Percentage         float64 `json:"percentage"`
	OverrideApproverID *int64  `json:"override_approver_id,omitempty"`
}

// HasOverride reports whether a designated approver is configured
func (r Rule) HasOverride() bool {
	return r.OverrideApproverID != nil && *r.OverrideApproverID != 0
}

// IsTerminal reports whether the claim has reached a final disposition
func (c *Claim) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// FindVote returns the vote slot of a reviewer, or nil if the reviewer is not in the chain
func (c *Claim) FindVote(reviewerID int64) *Vote {
	for i := range c.Approvers {
		if c.Approvers[i].ReviewerID == reviewerID {
			return &c.Approvers[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the claim
func (c *Claim) Clone() *Claim {
	cp := *c
	cp.Approvers = make([]Vote, len(c.Approvers))
	for i, v := range c.Approvers {
		if v.DecidedAt != nil {
			t := *v.DecidedAt
			v.DecidedAt = &t
		}
		cp.Approvers[i] = v
	}
	if c.Rule.OverrideApproverID != nil {
		id := *c.Rule.OverrideApproverID
		cp.Rule.OverrideApproverID = &id
	}
	if c.OriginalAmount != nil {
		amt := *c.OriginalAmount
		cp.OriginalAmount = &amt
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	if c.LastRemindedAt != nil {
		t := *c.LastRemindedAt
		cp.LastRemindedAt = &t
	}
	return &cp
}
