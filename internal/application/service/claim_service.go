package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// ChainRouter selects an administrator-defined chain for a new claim.
// It returns nil when no routing policy matches.
type ChainRouter interface {
	Route(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*approval.ChainOverride, error)
}

// SubmitClaimInput carries a new expense claim
type SubmitClaimInput struct {
	SubmitterID int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	ExpenseDate time.Time
}

// RuleInput replaces the chain and completion rule of a pending claim
type RuleInput struct {
	Approvers          []int64
	Percentage         float64
	OverrideApproverID *int64
}

// ClaimService is the use-case layer over claims
type ClaimService interface {
	Submit(ctx context.Context, input SubmitClaimInput) (*entity.Claim, error)
	Get(ctx context.Context, actorID, claimID int64) (*entity.Claim, error)
	ListMine(ctx context.Context, userID int64) ([]*entity.Claim, error)

	// ListPendingFor returns the claims the reviewer can vote on right now
	ListPendingFor(ctx context.Context, reviewerID int64) ([]*entity.Claim, error)

	ListAll(ctx context.Context, actorID int64) ([]*entity.Claim, error)
	Vote(ctx context.Context, claimID, reviewerID int64, decision entity.Decision, comment string) (*entity.Claim, error)
	Reconfigure(ctx context.Context, actorID, claimID int64, input RuleInput) (*entity.Claim, error)
	History(ctx context.Context, actorID, claimID int64) ([]*entity.ClaimHistory, error)

	// Export writes the company's claims as a report to w and returns
	// the archive path when archiving is enabled
	Export(ctx context.Context, actorID int64, w io.Writer) (string, error)
}

type claimServiceImpl struct {
	claims    port.ClaimRepository
	users     port.UserRepository
	companies port.CompanyRepository
	history   port.HistoryRepository
	engine    workflow.Engine
	logger    Logger

	router    ChainRouter
	converter port.CurrencyConverter
	exporter  port.ClaimExporter
	archive   port.FileStorage
	maxAmount decimal.Decimal
	now       func() time.Time
}

// ClaimServiceOption configures optional collaborators of the claim service
type ClaimServiceOption func(*claimServiceImpl)

// WithRouter enables routing policies
func WithRouter(r ChainRouter) ClaimServiceOption {
	return func(s *claimServiceImpl) { s.router = r }
}

// WithConverter enables foreign-currency submissions
func WithConverter(c port.CurrencyConverter) ClaimServiceOption {
	return func(s *claimServiceImpl) { s.converter = c }
}

// WithExporter enables report export
func WithExporter(e port.ClaimExporter) ClaimServiceOption {
	return func(s *claimServiceImpl) { s.exporter = e }
}

// WithArchive keeps a copy of every export in storage
func WithArchive(fs port.FileStorage) ClaimServiceOption {
	return func(s *claimServiceImpl) { s.archive = fs }
}

// WithMaxAmount rejects claims above max after conversion
func WithMaxAmount(max decimal.Decimal) ClaimServiceOption {
	return func(s *claimServiceImpl) { s.maxAmount = max }
}

// NewClaimService creates a new ClaimService
func NewClaimService(
	claims port.ClaimRepository,
	users port.UserRepository,
	companies port.CompanyRepository,
	history port.HistoryRepository,
	engine workflow.Engine,
	logger Logger,
	opts ...ClaimServiceOption,
) ClaimService {
	s := &claimServiceImpl{
		claims:    claims,
		users:     users,
		companies: companies,
		history:   history,
		engine:    engine,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *claimServiceImpl) Submit(ctx context.Context, input SubmitClaimInput) (*entity.Claim, error) {
	submitter, err := s.user(ctx, input.SubmitterID)
	if err != nil {
		return nil, err
	}
	if submitter.IsAdmin() {
		return nil, fmt.Errorf("%w: administrators cannot submit claims", ErrForbidden)
	}

	category := strings.ToUpper(strings.TrimSpace(input.Category))
	if !entity.IsValidCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, input.Category)
	}
	if input.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}

	company, err := s.companies.GetByID(ctx, submitter.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return nil, fmt.Errorf("company %d: %w", submitter.CompanyID, ErrCompanyNotFound)
	}

	draft := &entity.Claim{
		SubmitterID: submitter.ID,
		CompanyID:   submitter.CompanyID,
		Amount:      input.Amount,
		Category:    category,
		Description: utils.SanitizeString(input.Description),
		ExpenseDate: input.ExpenseDate,
	}
	if draft.ExpenseDate.IsZero() {
		draft.ExpenseDate = s.now()
	}

	if err := s.normalizeAmount(ctx, draft, input.Currency, company.Currency); err != nil {
		return nil, err
	}

	var override *approval.ChainOverride
	if s.router != nil {
		override, err = s.router.Route(ctx, draft, submitter)
		if err != nil {
			s.logger.Error("Routing failed", "error", err, "submitter_id", submitter.ID)
			return nil, fmt.Errorf("route claim: %w", err)
		}
	}

	org := approval.OrgContext{ManagerID: submitter.ManagerID}
	if submitter.ManagerID != nil {
		manager, err := s.users.GetByID(ctx, *submitter.ManagerID)
		if err != nil {
			return nil, fmt.Errorf("get manager: %w", err)
		}
		org.ManagerIsApprover = manager != nil && manager.IsManagerApprover
	}

	votes, rule, err := approval.AssembleChain(approval.Submission{SubmitterID: submitter.ID}, org, override)
	if err != nil {
		return nil, err
	}

	return s.engine.Submit(ctx, draft, votes, rule)
}

// normalizeAmount converts the claim into the company currency
func (s *claimServiceImpl) normalizeAmount(ctx context.Context, claim *entity.Claim, currency, companyCurrency string) error {
	if strings.TrimSpace(currency) == "" {
		currency = companyCurrency
	}
	code, err := utils.NormalizeCurrency(currency)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if code != companyCurrency {
		if s.converter == nil {
			return fmt.Errorf("%w: cannot convert %s to %s", ErrInvalidInput, code, companyCurrency)
		}
		converted, err := s.converter.Convert(ctx, claim.Amount, code, companyCurrency)
		if err != nil {
			return fmt.Errorf("convert %s to %s: %w", code, companyCurrency, err)
		}
		original := claim.Amount
		claim.OriginalAmount = &original
		claim.OriginalCurrency = code
		claim.Amount = converted.Round(2)
	}

	if err := utils.ValidateAmount(claim.Amount, s.maxAmount); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *claimServiceImpl) Get(ctx context.Context, actorID, claimID int64) (*entity.Claim, error) {
	actor, err := s.user(ctx, actorID)
	if err != nil {
		return nil, err
	}
	claim, err := s.claim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, claim) {
		return nil, fmt.Errorf("%w: claim %d", ErrForbidden, claimID)
	}
	return claim, nil
}

func (s *claimServiceImpl) ListMine(ctx context.Context, userID int64) ([]*entity.Claim, error) {
	return s.claims.ListBySubmitter(ctx, userID)
}

func (s *claimServiceImpl) ListPendingFor(ctx context.Context, reviewerID int64) ([]*entity.Claim, error) {
	candidates, err := s.claims.ListPendingByReviewer(ctx, reviewerID)
	if err != nil {
		return nil, err
	}

	pending := make([]*entity.Claim, 0, len(candidates))
	for _, c := range candidates {
		if approval.CanVote(c, reviewerID) {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (s *claimServiceImpl) ListAll(ctx context.Context, actorID int64) ([]*entity.Claim, error) {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.claims.ListByCompany(ctx, actor.CompanyID)
}

func (s *claimServiceImpl) Vote(ctx context.Context, claimID, reviewerID int64, decision entity.Decision, comment string) (*entity.Claim, error) {
	decision = entity.Decision(strings.ToUpper(strings.TrimSpace(string(decision))))
	return s.engine.Vote(ctx, claimID, reviewerID, decision, utils.SanitizeString(comment))
}

func (s *claimServiceImpl) Reconfigure(ctx context.Context, actorID, claimID int64, input RuleInput) (*entity.Claim, error) {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, err
	}

	claim, err := s.claim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.CompanyID != actor.CompanyID {
		return nil, fmt.Errorf("%w: claim %d", ErrForbidden, claimID)
	}

	for _, id := range input.Approvers {
		reviewer, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get approver: %w", err)
		}
		if reviewer == nil || reviewer.CompanyID != actor.CompanyID {
			return nil, fmt.Errorf("%w: approver %d is not in the company", approval.ErrInvalidRuleConfiguration, id)
		}
	}

	rule := entity.Rule{Percentage: input.Percentage, OverrideApproverID: input.OverrideApproverID}
	return s.engine.Reconfigure(ctx, claimID, actor.ID, input.Approvers, rule)
}

func (s *claimServiceImpl) History(ctx context.Context, actorID, claimID int64) ([]*entity.ClaimHistory, error) {
	if _, err := s.Get(ctx, actorID, claimID); err != nil {
		return nil, err
	}
	return s.history.GetByClaimID(ctx, claimID)
}

func (s *claimServiceImpl) Export(ctx context.Context, actorID int64, w io.Writer) (string, error) {
	if s.exporter == nil {
		return "", errors.New("export is not configured")
	}

	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return "", err
	}

	claims, err := s.claims.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return "", fmt.Errorf("list claims: %w", err)
	}
	users, err := s.users.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return "", fmt.Errorf("list users: %w", err)
	}
	byID := make(map[int64]*entity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var buf bytes.Buffer
	if err := s.exporter.Export(ctx, &buf, claims, byID); err != nil {
		s.logger.Error("Export failed", "error", err, "company_id", actor.CompanyID)
		return "", fmt.Errorf("export claims: %w", err)
	}

	var path string
	if s.archive != nil {
		path = fmt.Sprintf("exports/company_%d/claims_%s.xlsx", actor.CompanyID, s.now().UTC().Format("20060102_150405"))
		if err := s.archive.Save(ctx, path, buf.Bytes()); err != nil {
			s.logger.Error("Failed to archive export", "error", err, "path", path)
			return "", fmt.Errorf("archive export: %w", err)
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}

	s.logger.Info("Claims exported",
		"company_id", actor.CompanyID,
		"claims", len(claims),
		"bytes", buf.Len(),
		"archive", path,
	)
	return path, nil
}

func (s *claimServiceImpl) user(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
	}
	return user, nil
}

func (s *claimServiceImpl) admin(ctx context.Context, id int64) (*entity.User, error) {
	user, err := s.user(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	return user, nil
}

func (s *claimServiceImpl) claim(ctx context.Context, id int64) (*entity.Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %d: %w", id, ErrClaimNotFound)
	}
	return claim, nil
}

// canView allows the submitter, anyone in the chain and company admins
func canView(actor *entity.User, claim *entity.Claim) bool {
	if actor.ID == claim.SubmitterID || claim.FindVote(actor.ID) != nil {
		return true
	}
	return actor.IsAdmin() && actor.CompanyID == claim.CompanyID
}
