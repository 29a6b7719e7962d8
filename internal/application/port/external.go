package port

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ReviewRequest tells a reviewer a claim is waiting on them
type ReviewRequest struct {
	Reviewer  *entity.User
	Submitter *entity.User
	Claim     *entity.Claim
	Reminder  bool
}

// ResolutionNotice tells a submitter the final outcome of a claim
type ResolutionNotice struct {
	Submitter *entity.User
	Claim     *entity.Claim
}

// Notifier delivers messages to directory users
type Notifier interface {
	NotifyReviewer(ctx context.Context, req *ReviewRequest) error
	NotifySubmitter(ctx context.Context, notice *ResolutionNotice) error
}

// Advisory is the outcome of an automated pre-review. It never changes claim status.
type Advisory struct {
	Risk  string `json:"risk"`
	Notes string `json:"notes"`
}

// ClaimAdvisor produces an advisory note for a submitted claim
type ClaimAdvisor interface {
	Advise(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*Advisory, error)
}

// CurrencyConverter converts an amount between ISO 4217 currencies
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// ClaimLocker serializes work on a single claim. The returned unlock must
// be called exactly once on every path.
type ClaimLocker interface {
	Lock(ctx context.Context, claimID int64) (unlock func(), err error)
}

// ClaimExporter renders claims into a report document
type ClaimExporter interface {
	Export(ctx context.Context, w io.Writer, claims []*entity.Claim, users map[int64]*entity.User) error
}

// FileStorage keeps generated files such as archived exports
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) bool
	GetFullPath(relativePath string) string
}
