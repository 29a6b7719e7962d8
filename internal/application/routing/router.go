package routing

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type compiledPolicy struct {
	Policy
	program cel.Program
}

// Router picks the first policy whose condition holds for a claim.
// Conditions are CEL expressions over two variables:
//
//	claim:     amount (double, company currency), original_currency, category, description, company_id
//	submitter: id, role, manager_id, company_id
type Router struct {
	policies []compiledPolicy
	logger   Logger
}

// NewRouter compiles every policy condition up front
func NewRouter(policies []Policy, logger Logger) (*Router, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.DynType),
		cel.Variable("submitter", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	r := &Router{logger: logger}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}

		expr := p.Condition
		if expr == "" {
			expr = "true"
		}

		ast, issues := env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("routing: policy %q: CEL compilation error: %w", p.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("routing: policy %q: failed to create CEL program: %w", p.Name, err)
		}
		r.policies = append(r.policies, compiledPolicy{Policy: p, program: prg})
	}
	return r, nil
}

// Route returns the chain of the first matching policy, or nil
func (r *Router) Route(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*approval.ChainOverride, error) {
	vars := map[string]interface{}{
		"claim":     claimVars(claim),
		"submitter": submitterVars(submitter),
	}

	for _, p := range r.policies {
		if p.CompanyID != 0 && p.CompanyID != claim.CompanyID {
			continue
		}

		out, _, err := p.program.ContextEval(ctx, vars)
		if err != nil {
			return nil, fmt.Errorf("routing: policy %q: CEL evaluation error: %w", p.Name, err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return nil, fmt.Errorf("routing: policy %q: condition did not return boolean, got %T", p.Name, out.Value())
		}
		if matched {
			if r.logger != nil {
				r.logger.Info("Routing policy matched", "policy", p.Name, "submitter_id", submitter.ID)
			}
			return p.Override(), nil
		}
	}
	return nil, nil
}

// Len returns the number of loaded policies
func (r *Router) Len() int {
	return len(r.policies)
}

func claimVars(c *entity.Claim) map[string]interface{} {
	return map[string]interface{}{
		"amount":            c.Amount.InexactFloat64(),
		"original_currency": c.OriginalCurrency,
		"category":          c.Category,
		"description":       c.Description,
		"company_id":        c.CompanyID,
	}
}

func submitterVars(u *entity.User) map[string]interface{} {
	var managerID int64
	if u.ManagerID != nil {
		managerID = *u.ManagerID
	}
	return map[string]interface{}{
		"id":         u.ID,
		"role":       string(u.Role),
		"manager_id": managerID,
		"company_id": u.CompanyID,
	}
}
