package port

import (
	"context"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Repositories return (nil, nil) when a single record is not found.

// ClaimRepository persists claims together with their approval chains
type ClaimRepository interface {
	// Create inserts the claim and its votes, setting claim.ID
	Create(ctx context.Context, claim *entity.Claim) error

	// GetByID loads a claim with its votes ordered by sequence
	GetByID(ctx context.Context, id int64) (*entity.Claim, error)

	// Update writes status, rule, resolution time and replaces the votes
	Update(ctx context.Context, claim *entity.Claim) error

	// SetAdvisoryNote stores the advisory review text of a claim
	SetAdvisoryNote(ctx context.Context, id int64, note string) error

	ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error)

	// ListPendingByReviewer returns pending claims with the reviewer in the chain.
	// Callers filter further with approval.CanVote.
	ListPendingByReviewer(ctx context.Context, reviewerID int64) ([]*entity.Claim, error)

	ListByCompany(ctx context.Context, companyID int64) ([]*entity.Claim, error)

	// ListPendingSince returns pending claims neither updated nor reminded
	// since cutoff, least recently touched first
	ListPendingSince(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Claim, error)

	// MarkReminded records a reminder sweep over the claim
	MarkReminded(ctx context.Context, id int64, at time.Time) error
}

// UserRepository persists directory users
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*entity.User, error)
	// Update rewrites the mutable profile fields; email and company are fixed
	Update(ctx context.Context, user *entity.User) error
}

// CompanyRepository persists companies
type CompanyRepository interface {
	Create(ctx context.Context, company *entity.Company) error
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// HistoryRepository persists the audit trail of claims
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ClaimHistory) error
	GetByClaimID(ctx context.Context, claimID int64) ([]*entity.ClaimHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
