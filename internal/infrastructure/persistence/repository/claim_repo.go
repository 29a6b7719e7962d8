package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ClaimRepository implements port.ClaimRepository. Votes live in
// claim_votes and are always loaded and written with their claim.
type ClaimRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sql.DB, logger *zap.Logger) port.ClaimRepository {
	return &ClaimRepository{db: db, logger: logger}
}

const claimColumns = `
	c.id, c.submitter_id, c.company_id, c.amount, c.original_amount, c.original_currency,
	c.category, c.description, c.expense_date, c.status, c.rule_percentage,
	c.override_approver_id, c.advisory_note, c.submitted_at, c.resolved_at,
	c.created_at, c.updated_at, c.last_reminded_at`

// Create inserts the claim and its votes. Call inside a transaction.
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	now := time.Now()
	if claim.CreatedAt.IsZero() {
		claim.CreatedAt = now
	}
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = now
	}
	if claim.SubmittedAt.IsZero() {
		claim.SubmittedAt = now
	}

	query := `
		INSERT INTO claims (
			submitter_id, company_id, amount, original_amount, original_currency,
			category, description, expense_date, status, rule_percentage,
			override_approver_id, advisory_note, submitted_at, resolved_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		claim.SubmitterID,
		claim.CompanyID,
		claim.Amount.String(),
		nullDecimal(claim.OriginalAmount),
		claim.OriginalCurrency,
		claim.Category,
		claim.Description,
		claim.ExpenseDate.UTC(),
		claim.Status,
		claim.Rule.Percentage,
		nullInt64(claim.Rule.OverrideApproverID),
		claim.AdvisoryNote,
		claim.SubmittedAt.UTC(),
		nullTime(claim.ResolvedAt),
		claim.CreatedAt.UTC(),
		claim.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create claim", zap.Int64("submitter_id", claim.SubmitterID), zap.Error(err))
		return fmt.Errorf("failed to create claim: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	claim.ID = id

	return r.insertVotes(ctx, exec, claim)
}

// GetByID loads a claim and its chain
func (r *ClaimRepository) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	row := exec.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims c WHERE c.id = ?`, id)

	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}

	if err := r.loadVotes(ctx, exec, []*entity.Claim{claim}); err != nil {
		return nil, err
	}
	return claim, nil
}

// Update persists status, rule and resolution and replaces the chain
func (r *ClaimRepository) Update(ctx context.Context, claim *entity.Claim) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	result, err := exec.ExecContext(ctx, `
		UPDATE claims
		SET status = ?, rule_percentage = ?, override_approver_id = ?,
			resolved_at = ?, updated_at = ?
		WHERE id = ?
	`,
		claim.Status,
		claim.Rule.Percentage,
		nullInt64(claim.Rule.OverrideApproverID),
		nullTime(claim.ResolvedAt),
		claim.UpdatedAt.UTC(),
		claim.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update claim", zap.Int64("id", claim.ID), zap.Error(err))
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update claim %d: %w", claim.ID, sql.ErrNoRows)
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM claim_votes WHERE claim_id = ?`, claim.ID); err != nil {
		r.logger.Error("Failed to clear votes", zap.Int64("claim_id", claim.ID), zap.Error(err))
		return fmt.Errorf("failed to clear votes: %w", err)
	}
	return r.insertVotes(ctx, exec, claim)
}

// SetAdvisoryNote stores the advisory text without touching updated_at
func (r *ClaimRepository) SetAdvisoryNote(ctx context.Context, id int64, note string) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE claims SET advisory_note = ? WHERE id = ?`, note, id)
	if err != nil {
		r.logger.Error("Failed to set advisory note", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to set advisory note: %w", err)
	}
	return nil
}

func (r *ClaimRepository) ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `SELECT `+claimColumns+` FROM claims c
		WHERE c.submitter_id = ? ORDER BY c.submitted_at DESC, c.id DESC`, submitterID)
}

func (r *ClaimRepository) ListPendingByReviewer(ctx context.Context, reviewerID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `SELECT `+claimColumns+` FROM claims c
		JOIN claim_votes v ON v.claim_id = c.id
		WHERE v.reviewer_id = ? AND c.status = ?
		ORDER BY c.submitted_at ASC, c.id ASC`, reviewerID, entity.ClaimStatusPending)
}

func (r *ClaimRepository) ListByCompany(ctx context.Context, companyID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `SELECT `+claimColumns+` FROM claims c
		WHERE c.company_id = ? ORDER BY c.submitted_at DESC, c.id DESC`, companyID)
}

// ListPendingSince orders by the later of the last update and the last
// reminder, so each sweep moves on to claims not yet reminded.
func (r *ClaimRepository) ListPendingSince(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Claim, error) {
	return r.list(ctx, `SELECT `+claimColumns+` FROM claims c
		WHERE c.status = ? AND `+lastTouched+` < ?
		ORDER BY `+lastTouched+` ASC, c.id ASC LIMIT ?`, entity.ClaimStatusPending, cutoff.UTC(), limit)
}

const lastTouched = `MAX(c.updated_at, COALESCE(c.last_reminded_at, c.updated_at))`

// MarkReminded stamps the reminder time without touching updated_at
func (r *ClaimRepository) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE claims SET last_reminded_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark claim reminded", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark claim reminded: %w", err)
	}
	return nil
}

func (r *ClaimRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Claim, error) {
	exec := sqlite.ExecutorFrom(ctx, r.db)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list claims", zap.Error(err))
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	var claims []*entity.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	// rows must be closed first: a single-connection pool cannot serve both
	if err := r.loadVotes(ctx, exec, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *ClaimRepository) insertVotes(ctx context.Context, exec sqlite.Executor, claim *entity.Claim) error {
	for _, v := range claim.Approvers {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO claim_votes (claim_id, reviewer_id, sequence, decision, comment, decided_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, claim.ID, v.ReviewerID, v.Sequence, v.Decision, v.Comment, nullTime(v.DecidedAt))
		if err != nil {
			r.logger.Error("Failed to insert vote",
				zap.Int64("claim_id", claim.ID),
				zap.Int64("reviewer_id", v.ReviewerID),
				zap.Error(err))
			return fmt.Errorf("failed to insert vote: %w", err)
		}
	}
	return nil
}

func (r *ClaimRepository) loadVotes(ctx context.Context, exec sqlite.Executor, claims []*entity.Claim) error {
	for _, claim := range claims {
		rows, err := exec.QueryContext(ctx, `
			SELECT reviewer_id, sequence, decision, comment, decided_at
			FROM claim_votes WHERE claim_id = ? ORDER BY sequence ASC
		`, claim.ID)
		if err != nil {
			r.logger.Error("Failed to load votes", zap.Int64("claim_id", claim.ID), zap.Error(err))
			return fmt.Errorf("failed to load votes: %w", err)
		}

		claim.Approvers = []entity.Vote{}
		for rows.Next() {
			var v entity.Vote
			var decidedAt sql.NullTime
			if err := rows.Scan(&v.ReviewerID, &v.Sequence, &v.Decision, &v.Comment, &decidedAt); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan vote: %w", err)
			}
			if decidedAt.Valid {
				t := decidedAt.Time
				v.DecidedAt = &t
			}
			claim.Approvers = append(claim.Approvers, v)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("failed to load votes: %w", err)
		}
	}
	return nil
}

func scanClaim(s scanner) (*entity.Claim, error) {
	var claim entity.Claim
	var amount string
	var originalAmount decimal.NullDecimal
	var overrideID sql.NullInt64
	var resolvedAt, remindedAt sql.NullTime

	if err := s.Scan(
		&claim.ID,
		&claim.SubmitterID,
		&claim.CompanyID,
		&amount,
		&originalAmount,
		&claim.OriginalCurrency,
		&claim.Category,
		&claim.Description,
		&claim.ExpenseDate,
		&claim.Status,
		&claim.Rule.Percentage,
		&overrideID,
		&claim.AdvisoryNote,
		&claim.SubmittedAt,
		&resolvedAt,
		&claim.CreatedAt,
		&claim.UpdatedAt,
		&remindedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("claim %d has malformed amount %q: %w", claim.ID, amount, err)
	}
	claim.Amount = parsed

	if originalAmount.Valid {
		d := originalAmount.Decimal
		claim.OriginalAmount = &d
	}
	if overrideID.Valid {
		id := overrideID.Int64
		claim.Rule.OverrideApproverID = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		claim.ResolvedAt = &t
	}
	if remindedAt.Valid {
		t := remindedAt.Time
		claim.LastRemindedAt = &t
	}
	return &claim, nil
}

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ port.ClaimRepository = (*ClaimRepository)(nil)
