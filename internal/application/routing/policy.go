package routing

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PolicyFile is the on-disk routing configuration
type PolicyFile struct {
	Version  int      `yaml:"version"`
	Policies []Policy `yaml:"policies"`
}

// Policy maps claims matching Condition onto a fixed approval chain.
// An empty Condition matches every claim. A zero CompanyID applies to all companies.
type Policy struct {
	Name               string  `yaml:"name"`
	CompanyID          int64   `yaml:"company_id"`
	Condition          string  `yaml:"condition"`
	Approvers          []int64 `yaml:"approvers"`
	Percentage         float64 `yaml:"percentage"`
	OverrideApproverID *int64  `yaml:"override_approver_id"`
}

// Override returns the chain override the policy stands for
func (p Policy) Override() *approval.ChainOverride {
	rule := entity.Rule{Percentage: p.Percentage}
	if p.OverrideApproverID != nil {
		id := *p.OverrideApproverID
		rule.OverrideApproverID = &id
	}
	return &approval.ChainOverride{
		Approvers: append([]int64(nil), p.Approvers...),
		Rule:      rule,
	}
}

// Validate checks the chain and rule of the policy
func (p Policy) Validate() error {
	if p.Name == "" {
		return errors.New("routing: policy without name")
	}
	votes, err := approval.BuildChain(p.Approvers)
	if err != nil {
		return fmt.Errorf("routing: policy %q: %w", p.Name, err)
	}
	if err := approval.ValidateRule(votes, p.Override().Rule); err != nil {
		return fmt.Errorf("routing: policy %q: %w", p.Name, err)
	}
	return nil
}

// ParsePolicies decodes and validates a routing policy document
func ParsePolicies(b []byte) ([]Policy, error) {
	var f PolicyFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	if f.Version != 1 {
		return nil, errors.New("routing: unsupported version")
	}

	seen := make(map[string]bool, len(f.Policies))
	for _, p := range f.Policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("routing: duplicate policy %q", p.Name)
		}
		seen[p.Name] = true
	}
	return f.Policies, nil
}

// LoadPolicies reads a routing policy file
func LoadPolicies(path string) ([]Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing policies: %w", err)
	}
	return ParsePolicies(b)
}
