package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// ErrClaimNotFound is returned when the claim id does not exist
var ErrClaimNotFound = errors.New("claim not found")

// Engine runs the read-decide-write cycle of a claim. Votes and
// reconfigurations on the same claim are serialized by the ClaimLocker;
// different claims proceed in parallel.
type Engine interface {
	// Submit opens a new claim with an assembled chain and persists it
	Submit(ctx context.Context, draft *entity.Claim, approvers []entity.Vote, rule entity.Rule) (*entity.Claim, error)

	// Vote records a reviewer decision and commits the resulting status
	Vote(ctx context.Context, claimID, reviewerID int64, decision entity.Decision, comment string) (*entity.Claim, error)

	// Reconfigure replaces the chain and rule of a pending claim
	Reconfigure(ctx context.Context, claimID, actorID int64, reviewers []int64, rule entity.Rule) (*entity.Claim, error)
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type engine struct {
	claims     port.ClaimRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	locker     port.ClaimLocker
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engine)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engine) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engine) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engine) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	claims port.ClaimRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	locker port.ClaimLocker,
	opts ...EngineOption,
) Engine {
	e := &engine{
		claims:    claims,
		history:   history,
		txManager: txManager,
		locker:    locker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Submit(ctx context.Context, draft *entity.Claim, approvers []entity.Vote, rule entity.Rule) (*entity.Claim, error) {
	now := e.now()
	draft = draft.Clone()
	draft.SubmittedAt = now
	draft.CreatedAt = now

	claim, err := approval.Open(draft, approvers, rule, now)
	if err != nil {
		return nil, err
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.claims.Create(txCtx, claim); err != nil {
			return fmt.Errorf("failed to create claim: %w", err)
		}

		if err := e.record(txCtx, claim.ID, claim.SubmitterID, entity.ActionSubmit, "", string(entity.ClaimStatusPending),
			fmt.Sprintf("amount=%s category=%s approvers=%d", claim.Amount.StringFixed(2), claim.Category, len(claim.Approvers)), now); err != nil {
			return err
		}

		if claim.IsTerminal() {
			return e.record(txCtx, claim.ID, claim.SubmitterID, entity.ActionStatusChange,
				string(entity.ClaimStatusPending), string(claim.Status), "no reviewers required", now)
		}
		return nil
	})
	if err != nil {
		e.logError("Claim submission failed", "submitter_id", draft.SubmitterID, "error", err)
		return nil, err
	}

	e.logInfo("Claim submitted",
		"claim_id", claim.ID,
		"submitter_id", claim.SubmitterID,
		"status", claim.Status,
		"approvers", len(claim.Approvers),
	)

	submitted := event.NewEvent(event.TypeClaimSubmitted, claim.ID, map[string]interface{}{
		event.KeySubmitterID: claim.SubmitterID,
	})
	e.emit(ctx, submitted)
	if claim.IsTerminal() {
		e.emitStatusChange(ctx, submitted.CorrelationID, claim, entity.ClaimStatusPending)
	}
	return claim, nil
}

func (e *engine) Vote(ctx context.Context, claimID, reviewerID int64, decision entity.Decision, comment string) (*entity.Claim, error) {
	unlock, err := e.locker.Lock(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock claim %d: %w", claimID, err)
	}
	defer unlock()

	var previous entity.ClaimStatus
	var updated *entity.Claim

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		claim, err := e.load(txCtx, claimID)
		if err != nil {
			return err
		}
		previous = claim.Status

		now := e.now()
		updated, err = approval.ApplyVote(claim, reviewerID, decision, comment, now)
		if err != nil {
			return err
		}

		if err := e.claims.Update(txCtx, updated); err != nil {
			return fmt.Errorf("failed to update claim: %w", err)
		}

		detail := string(decision)
		if comment != "" {
			detail += ": " + comment
		}
		if err := e.record(txCtx, claimID, reviewerID, entity.ActionVote, string(previous), string(updated.Status), detail, now); err != nil {
			return err
		}

		if updated.Status != previous {
			return e.record(txCtx, claimID, reviewerID, entity.ActionStatusChange, string(previous), string(updated.Status), "", now)
		}
		return nil
	})
	if err != nil {
		e.logError("Vote rejected",
			"claim_id", claimID,
			"reviewer_id", reviewerID,
			"decision", decision,
			"error", err,
		)
		return nil, err
	}

	e.logInfo("Vote recorded",
		"claim_id", claimID,
		"reviewer_id", reviewerID,
		"decision", decision,
		"status", updated.Status,
	)

	voted := event.NewEvent(event.TypeClaimVoted, claimID, map[string]interface{}{
		event.KeyReviewerID: reviewerID,
		event.KeyDecision:   string(decision),
	})
	e.emit(ctx, voted)
	if updated.Status != previous {
		e.emitStatusChange(ctx, voted.CorrelationID, updated, previous)
	}
	return updated, nil
}

func (e *engine) Reconfigure(ctx context.Context, claimID, actorID int64, reviewers []int64, rule entity.Rule) (*entity.Claim, error) {
	unlock, err := e.locker.Lock(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock claim %d: %w", claimID, err)
	}
	defer unlock()

	var previous entity.ClaimStatus
	var updated *entity.Claim

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		claim, err := e.load(txCtx, claimID)
		if err != nil {
			return err
		}
		previous = claim.Status

		now := e.now()
		updated, err = approval.Reconfigure(claim, reviewers, rule, now)
		if err != nil {
			return err
		}

		if err := e.claims.Update(txCtx, updated); err != nil {
			return fmt.Errorf("failed to update claim: %w", err)
		}

		if err := e.record(txCtx, claimID, actorID, entity.ActionReconfigure, string(previous), string(updated.Status),
			describeRule(reviewers, rule), now); err != nil {
			return err
		}

		if updated.Status != previous {
			return e.record(txCtx, claimID, actorID, entity.ActionStatusChange, string(previous), string(updated.Status), "", now)
		}
		return nil
	})
	if err != nil {
		e.logError("Reconfiguration rejected", "claim_id", claimID, "actor_id", actorID, "error", err)
		return nil, err
	}

	e.logInfo("Claim reconfigured",
		"claim_id", claimID,
		"actor_id", actorID,
		"approvers", len(reviewers),
		"status", updated.Status,
	)

	reconfigured := event.NewEvent(event.TypeClaimReconfigured, claimID, map[string]interface{}{
		event.KeyActorID: actorID,
	})
	e.emit(ctx, reconfigured)
	if updated.Status != previous {
		e.emitStatusChange(ctx, reconfigured.CorrelationID, updated, previous)
	}
	return updated, nil
}

func (e *engine) load(ctx context.Context, claimID int64) (*entity.Claim, error) {
	claim, err := e.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %d: %w", claimID, ErrClaimNotFound)
	}
	return claim, nil
}

func (e *engine) record(ctx context.Context, claimID, actorID int64, action, previous, next, detail string, at time.Time) error {
	err := e.history.Create(ctx, &entity.ClaimHistory{
		ClaimID:        claimID,
		ActorID:        actorID,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      next,
		Detail:         detail,
		Timestamp:      at,
	})
	if err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}
	return nil
}

func (e *engine) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (e *engine) emitStatusChange(ctx context.Context, correlationID string, claim *entity.Claim, previous entity.ClaimStatus) {
	e.emit(ctx, event.NewEventWithCorrelation(event.TypeStatusChanged, claim.ID, map[string]interface{}{
		event.KeyPreviousStatus: string(previous),
		event.KeyNewStatus:      string(claim.Status),
		event.KeySubmitterID:    claim.SubmitterID,
	}, correlationID))
}

func (e *engine) logInfo(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, kv...)
	}
}

func (e *engine) logError(msg string, kv ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, kv...)
	}
}

func describeRule(reviewers []int64, rule entity.Rule) string {
	desc := fmt.Sprintf("approvers=%v percentage=%g", reviewers, rule.Percentage)
	if rule.HasOverride() {
		desc += fmt.Sprintf(" override=%d", *rule.OverrideApproverID)
	}
	return desc
}
