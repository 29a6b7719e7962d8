package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService tells reviewers and submitters about claim progress
type NotificationService interface {
	// NotifyNextReviewers messages every reviewer who can vote on the claim now
	NotifyNextReviewers(ctx context.Context, claimID int64, reminder bool) (int, error)

	// NotifyResolution messages the submitter of a terminal claim
	NotifyResolution(ctx context.Context, claimID int64) error

	// SendReminders re-notifies reviewers of claims idle for longer than after
	SendReminders(ctx context.Context, after time.Duration, limit int) (int, error)

	// RegisterHandlers subscribes the service to claim events
	RegisterHandlers(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	claims   port.ClaimRepository
	users    port.UserRepository
	notifier port.Notifier
	logger   Logger
	now      func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	claims port.ClaimRepository,
	users port.UserRepository,
	notifier port.Notifier,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		claims:   claims,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *notificationServiceImpl) NotifyNextReviewers(ctx context.Context, claimID int64, reminder bool) (int, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return 0, fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return 0, fmt.Errorf("claim %d: %w", claimID, ErrClaimNotFound)
	}

	reviewers := approval.NextReviewers(claim)
	if len(reviewers) == 0 {
		return 0, nil
	}

	submitter, err := s.users.GetByID(ctx, claim.SubmitterID)
	if err != nil {
		return 0, fmt.Errorf("get submitter: %w", err)
	}

	sent := 0
	for _, id := range reviewers {
		reviewer, err := s.users.GetByID(ctx, id)
		if err != nil {
			return sent, fmt.Errorf("get reviewer: %w", err)
		}
		if reviewer == nil {
			s.logger.Error("Reviewer missing from directory", "claim_id", claimID, "reviewer_id", id)
			continue
		}

		err = s.notifier.NotifyReviewer(ctx, &port.ReviewRequest{
			Reviewer:  reviewer,
			Submitter: submitter,
			Claim:     claim,
			Reminder:  reminder,
		})
		if err != nil {
			s.logger.Error("Failed to notify reviewer", "error", err, "claim_id", claimID, "reviewer_id", id)
			return sent, fmt.Errorf("notify reviewer %d: %w", id, err)
		}
		sent++
	}

	s.logger.Info("Reviewers notified", "claim_id", claimID, "count", sent, "reminder", reminder)
	return sent, nil
}

func (s *notificationServiceImpl) NotifyResolution(ctx context.Context, claimID int64) error {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return fmt.Errorf("claim %d: %w", claimID, ErrClaimNotFound)
	}
	if !claim.IsTerminal() {
		return nil
	}

	submitter, err := s.users.GetByID(ctx, claim.SubmitterID)
	if err != nil {
		return fmt.Errorf("get submitter: %w", err)
	}
	if submitter == nil {
		return fmt.Errorf("submitter %d: %w", claim.SubmitterID, ErrUserNotFound)
	}

	if err := s.notifier.NotifySubmitter(ctx, &port.ResolutionNotice{Submitter: submitter, Claim: claim}); err != nil {
		s.logger.Error("Failed to notify submitter", "error", err, "claim_id", claimID)
		return fmt.Errorf("notify submitter: %w", err)
	}

	s.logger.Info("Submitter notified", "claim_id", claimID, "status", claim.Status)
	return nil
}

// SendReminders stamps every claim it attempts, failed ones included, so the
// next sweep rotates to claims further back instead of retrying the same batch.
func (s *notificationServiceImpl) SendReminders(ctx context.Context, after time.Duration, limit int) (int, error) {
	now := s.now()
	claims, err := s.claims.ListPendingSince(ctx, now.Add(-after), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale claims: %w", err)
	}

	total := 0
	for _, claim := range claims {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.NotifyNextReviewers(ctx, claim.ID, true)
		total += n
		if err != nil {
			s.logger.Error("Failed to send reminder", "claim_id", claim.ID, "error", err)
		}
		if err := s.claims.MarkReminded(ctx, claim.ID, now); err != nil {
			s.logger.Error("Failed to record reminder", "claim_id", claim.ID, "error", err)
		}
	}
	return total, nil
}

func (s *notificationServiceImpl) RegisterHandlers(d dispatcher.Dispatcher) {
	notifyReviewers := func(ctx context.Context, evt *event.Event) error {
		_, err := s.NotifyNextReviewers(ctx, evt.ClaimID, false)
		return err
	}

	d.SubscribeNamed(event.TypeClaimSubmitted, "notify_reviewers", notifyReviewers)
	d.SubscribeNamed(event.TypeClaimVoted, "notify_reviewers", notifyReviewers)
	d.SubscribeNamed(event.TypeClaimReconfigured, "notify_reviewers", notifyReviewers)
	d.SubscribeNamed(event.TypeStatusChanged, "notify_submitter", func(ctx context.Context, evt *event.Event) error {
		status := entity.ClaimStatus(evt.GetPayloadString(event.KeyNewStatus))
		if !status.IsTerminal() {
			return nil
		}
		return s.NotifyResolution(ctx, evt.ClaimID)
	})
}
