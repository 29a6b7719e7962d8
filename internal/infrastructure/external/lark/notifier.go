package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Notifier implements port.Notifier with Lark interactive cards.
// Users are addressed by open_id when known and by email otherwise.
// A nil sender turns the notifier into a dry run that only logs.
type Notifier struct {
	sender  MessageSender
	baseURL string
	logger  *zap.Logger
}

// NewNotifier creates a Lark notifier. baseURL is the web UI root used
// for claim links and may be empty.
func NewNotifier(sender MessageSender, baseURL string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NotifyReviewer asks a reviewer to act on a claim
func (n *Notifier) NotifyReviewer(ctx context.Context, req *port.ReviewRequest) error {
	title := "Expense claim awaiting your review"
	if req.Reminder {
		title = "Reminder: expense claim still awaiting your review"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "**Claim:** #%d\n", req.Claim.ID)
	if req.Submitter != nil {
		fmt.Fprintf(&body, "**Submitted by:** %s\n", displayName(req.Submitter))
	}
	fmt.Fprintf(&body, "**Amount:** %s\n", formatAmount(req.Claim))
	fmt.Fprintf(&body, "**Category:** %s\n", req.Claim.Category)
	if req.Claim.Description != "" {
		fmt.Fprintf(&body, "**Description:** %s\n", req.Claim.Description)
	}
	if req.Claim.AdvisoryNote != "" {
		fmt.Fprintf(&body, "**Advisory:** %s\n", req.Claim.AdvisoryNote)
	}

	return n.send(ctx, req.Reviewer, newCard(title, "blue", body.String(), n.claimURL(req.Claim.ID)))
}

// NotifySubmitter reports the final outcome of a claim
func (n *Notifier) NotifySubmitter(ctx context.Context, notice *port.ResolutionNotice) error {
	template := "green"
	if notice.Claim.Status == entity.ClaimStatusRejected {
		template = "red"
	}
	title := fmt.Sprintf("Expense claim #%d %s", notice.Claim.ID, strings.ToLower(string(notice.Claim.Status)))

	var body strings.Builder
	fmt.Fprintf(&body, "**Amount:** %s\n", formatAmount(notice.Claim))
	for _, v := range notice.Claim.Approvers {
		if v.Comment != "" {
			fmt.Fprintf(&body, "**Reviewer %d (%s):** %s\n", v.Sequence, strings.ToLower(string(v.Decision)), v.Comment)
		}
	}

	return n.send(ctx, notice.Submitter, newCard(title, template, body.String(), n.claimURL(notice.Claim.ID)))
}

func (n *Notifier) send(ctx context.Context, to *entity.User, c *card) error {
	idType, id := receiver(to)
	if id == "" {
		return fmt.Errorf("user %d has no lark open_id or email", to.ID)
	}

	content, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal card content: %w", err)
	}

	if n.sender == nil {
		n.logger.Info("Lark disabled, notification not sent",
			zap.String("receive_id", id),
			zap.String("title", c.Header.Title.Content))
		return nil
	}

	if _, err := n.sender.Send(ctx, idType, id, "interactive", string(content)); err != nil {
		return fmt.Errorf("failed to send card message: %w", err)
	}
	return nil
}

func (n *Notifier) claimURL(id int64) string {
	if n.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/claims/%d", n.baseURL, id)
}

func receiver(u *entity.User) (string, string) {
	if u.LarkOpenID != "" {
		return "open_id", u.LarkOpenID
	}
	return "email", u.Email
}

func displayName(u *entity.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func formatAmount(c *entity.Claim) string {
	s := c.Amount.StringFixed(2)
	if c.OriginalAmount != nil && c.OriginalCurrency != "" {
		s += fmt.Sprintf(" (%s %s)", c.OriginalAmount.StringFixed(2), c.OriginalCurrency)
	}
	return s
}

var _ port.Notifier = (*Notifier)(nil)
