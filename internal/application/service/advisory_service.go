package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// AdvisoryService attaches automated policy notes to submitted claims.
// Advisories are informational and never change claim status.
type AdvisoryService interface {
	Review(ctx context.Context, claimID int64) (*port.Advisory, error)
	RegisterHandlers(d dispatcher.Dispatcher)
}

type advisoryServiceImpl struct {
	claims     port.ClaimRepository
	users      port.UserRepository
	history    port.HistoryRepository
	txManager  port.TransactionManager
	advisor    port.ClaimAdvisor
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewAdvisoryService creates a new AdvisoryService
func NewAdvisoryService(
	claims port.ClaimRepository,
	users port.UserRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	advisor port.ClaimAdvisor,
	logger Logger,
) AdvisoryService {
	return &advisoryServiceImpl{
		claims:    claims,
		users:     users,
		history:   history,
		txManager: txManager,
		advisor:   advisor,
		logger:    logger,
	}
}

func (s *advisoryServiceImpl) Review(ctx context.Context, claimID int64) (*port.Advisory, error) {
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %d: %w", claimID, ErrClaimNotFound)
	}

	submitter, err := s.users.GetByID(ctx, claim.SubmitterID)
	if err != nil {
		return nil, fmt.Errorf("get submitter: %w", err)
	}

	advisory, err := s.advisor.Advise(ctx, claim, submitter)
	if err != nil {
		s.logger.Error("Advisory review failed", "error", err, "claim_id", claimID)
		return nil, fmt.Errorf("advise: %w", err)
	}

	note := FormatAdvisory(advisory)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.claims.SetAdvisoryNote(txCtx, claimID, note); err != nil {
			return fmt.Errorf("set advisory note: %w", err)
		}
		return s.history.Create(txCtx, &entity.ClaimHistory{
			ClaimID:   claimID,
			Action:    entity.ActionAdvisory,
			Detail:    note,
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		s.logger.Error("Failed to store advisory", "error", err, "claim_id", claimID)
		return nil, err
	}

	s.logger.Info("Advisory recorded", "claim_id", claimID, "risk", advisory.Risk)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeAdvisoryRecorded, claimID, map[string]interface{}{
			"risk": advisory.Risk,
		}))
	}
	return advisory, nil
}

func (s *advisoryServiceImpl) RegisterHandlers(d dispatcher.Dispatcher) {
	s.dispatcher = d
	d.SubscribeNamed(event.TypeClaimSubmitted, "advisory_review", func(ctx context.Context, evt *event.Event) error {
		_, err := s.Review(ctx, evt.ClaimID)
		return err
	})
}

// FormatAdvisory renders an advisory as the note stored on the claim
func FormatAdvisory(a *port.Advisory) string {
	risk := strings.ToLower(strings.TrimSpace(a.Risk))
	if risk == "" {
		risk = "unknown"
	}
	return fmt.Sprintf("[%s] %s", risk, strings.TrimSpace(a.Notes))
}
