package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func TestXLSXExporter_Export(t *testing.T) {
	submitted := time.Date(2025, 4, 2, 8, 30, 0, 0, time.UTC)
	decided := submitted.Add(2 * time.Hour)
	original := decimal.RequireFromString("50")
	designated := int64(2)

	claims := []*entity.Claim{
		{
			ID:               11,
			SubmitterID:      3,
			Category:         entity.CategoryTravel,
			Description:      "taxi",
			Amount:           decimal.RequireFromString("45.5"),
			OriginalAmount:   &original,
			OriginalCurrency: "USD",
			Status:           entity.ClaimStatusApproved,
			ExpenseDate:      submitted,
			SubmittedAt:      submitted,
			ResolvedAt:       &decided,
			Rule:             entity.Rule{Percentage: 50, OverrideApproverID: &designated},
			Approvers: []entity.Vote{
				{ReviewerID: 2, Sequence: 1, Decision: entity.DecisionApproved, Comment: "ok", DecidedAt: &decided},
				{ReviewerID: 4, Sequence: 2, Decision: entity.DecisionUndecided},
			},
		},
		{
			ID:          12,
			SubmitterID: 3,
			Category:    entity.CategoryMeal,
			Amount:      decimal.RequireFromString("9.99"),
			Status:      entity.ClaimStatusApproved,
			SubmittedAt: submitted,
		},
	}
	users := map[int64]*entity.User{
		2: {ID: 2, Name: "Boss", Email: "boss@acme.test"},
		3: {ID: 3, Email: "emp@acme.test"},
	}

	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter(zap.NewNop()).Export(context.Background(), &buf, claims, users))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{claimsSheet, votesSheet}, f.GetSheetList())

	rows, err := f.GetRows(claimsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Claim ID", rows[0][0])
	assert.Equal(t, "11", rows[1][0])
	assert.Equal(t, "emp@acme.test", rows[1][1])
	assert.Equal(t, "USD", rows[1][7])
	assert.Equal(t, "APPROVED", rows[1][8])
	assert.Equal(t, "2025-04-02 10:30", rows[1][11])
	assert.Equal(t, "Boss", rows[1][13])

	amount, err := f.GetCellValue(claimsSheet, "F2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "45.5", amount)

	votes, err := f.GetRows(votesSheet)
	require.NoError(t, err)
	require.Len(t, votes, 3)
	assert.Equal(t, []string{"11", "1", "Boss", "boss@acme.test", "APPROVED", "ok", "2025-04-02 10:30"}, votes[1])
	assert.Equal(t, "UNDECIDED", votes[2][4])
}

func TestXLSXExporter_EmptyAndCancelled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewXLSXExporter(zap.NewNop()).Export(context.Background(), &buf, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	rows, err := f.GetRows(claimsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewXLSXExporter(zap.NewNop()).Export(ctx, &bytes.Buffer{}, []*entity.Claim{{ID: 1}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
