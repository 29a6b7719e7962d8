package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	claimsSheet = "Claims"
	votesSheet  = "Votes"
	timeLayout  = "2006-01-02 15:04"
)

var (
	claimHeader = []interface{}{
		"Claim ID", "Submitter", "Email", "Category", "Description", "Amount",
		"Original Amount", "Original Currency", "Status", "Expense Date",
		"Submitted At", "Resolved At", "Approval %", "Designated Approver", "Advisory",
	}
	voteHeader = []interface{}{
		"Claim ID", "Sequence", "Reviewer", "Email", "Decision", "Comment", "Decided At",
	}
)

// XLSXExporter implements port.ClaimExporter with an Excel workbook
// holding a Claims sheet and a Votes sheet
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new XLSX exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// Export writes the workbook to w
func (e *XLSXExporter) Export(ctx context.Context, w io.Writer, claims []*entity.Claim, users map[int64]*entity.User) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", claimsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(votesSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	if err := writeHeader(f, claimsSheet, claimHeader, headerStyle); err != nil {
		return err
	}
	if err := writeHeader(f, votesSheet, voteHeader, headerStyle); err != nil {
		return err
	}

	claimRow, voteRow := 2, 2
	for _, c := range claims {
		if err := ctx.Err(); err != nil {
			return err
		}

		submitter := users[c.SubmitterID]
		row := []interface{}{
			c.ID, userName(submitter), userEmail(submitter), c.Category, c.Description,
			c.Amount.InexactFloat64(), nil, c.OriginalCurrency, string(c.Status),
			c.ExpenseDate.Format("2006-01-02"), formatTime(&c.SubmittedAt), formatTime(c.ResolvedAt),
			c.Rule.Percentage, nil, c.AdvisoryNote,
		}
		if c.OriginalAmount != nil {
			row[6] = c.OriginalAmount.InexactFloat64()
		}
		if c.Rule.HasOverride() {
			row[13] = userName(users[*c.Rule.OverrideApproverID])
		}
		if err := setRow(f, claimsSheet, claimRow, row); err != nil {
			return err
		}
		claimRow++

		for _, v := range c.Approvers {
			reviewer := users[v.ReviewerID]
			if err := setRow(f, votesSheet, voteRow, []interface{}{
				c.ID, v.Sequence, userName(reviewer), userEmail(reviewer),
				string(v.Decision), v.Comment, formatTime(v.DecidedAt),
			}); err != nil {
				return err
			}
			voteRow++
		}
	}

	if claimRow > 2 {
		if err := f.SetCellStyle(claimsSheet, "F2", fmt.Sprintf("G%d", claimRow-1), moneyStyle); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	e.layout(f)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("Claims workbook written",
		zap.Int("claims", claimRow-2),
		zap.Int("votes", voteRow-2))
	return nil
}

// layout sizes columns and freezes the header rows; failures only affect cosmetics
func (e *XLSXExporter) layout(f *excelize.File) {
	widths := map[string]map[string]float64{
		claimsSheet: {"A": 10, "B": 20, "C": 28, "D": 16, "E": 36, "F": 14, "G": 16, "H": 10, "I": 12, "J": 14, "K": 18, "L": 18, "M": 12, "N": 20, "O": 40},
		votesSheet:  {"A": 10, "B": 10, "C": 20, "D": 28, "E": 12, "F": 40, "G": 18},
	}
	for sheet, cols := range widths {
		for col, width := range cols {
			if err := f.SetColWidth(sheet, col, col, width); err != nil {
				e.logger.Warn("Failed to set column width", zap.String("sheet", sheet), zap.String("col", col), zap.Error(err))
			}
		}
		if err := f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			e.logger.Warn("Failed to freeze header", zap.String("sheet", sheet), zap.Error(err))
		}
	}
}

func writeHeader(f *excelize.File, sheet string, header []interface{}, style int) error {
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("failed to resolve header range: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func userName(u *entity.User) string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func userEmail(u *entity.User) string {
	if u == nil {
		return ""
	}
	return u.Email
}

var _ port.ClaimExporter = (*XLSXExporter)(nil)
