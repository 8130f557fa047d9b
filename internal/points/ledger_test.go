package points

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

func TestPaidRegistrationPoints(t *testing.T) {
	cases := []struct {
		amount int64
		want   int64
	}{
		{1, 3},     // rounds up to 1 base point
		{9999, 3},  // still under one unit
		{10000, 3}, // exactly one unit
		{10001, 4}, // tips into the second unit
		{50000, 7}, // 5 + 2
		{100000, 12},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, PaidRegistrationPoints(c.amount), "amount %d", c.amount)
	}
}

func TestAwardAndGet(t *testing.T) {
	ledger := NewLedger(memstore.New())
	ctx := context.Background()

	balance, err := ledger.Award(ctx, "usr-1", 5, "paid registration for Morning Run")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	balance, err = ledger.Award(ctx, "usr-1", 2, "free event validation for Yoga")
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance)

	up, err := ledger.Get(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), up.TotalPoints)
	require.Len(t, up.Transactions, 2)
	assert.Equal(t, core.PointsEarned, up.Transactions[0].Type)
}

func TestAwardRejectsNonPositive(t *testing.T) {
	ledger := NewLedger(memstore.New())
	_, err := ledger.Award(context.Background(), "usr-1", 0, "nothing")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestDeduct(t *testing.T) {
	ledger := NewLedger(memstore.New())
	ctx := context.Background()

	_, err := ledger.Award(ctx, "usr-1", 10, "seed")
	require.NoError(t, err)

	balance, err := ledger.Deduct(ctx, "usr-1", 4, "redeemed merch", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)

	up, err := ledger.Get(ctx, "usr-1")
	require.NoError(t, err)
	require.Len(t, up.Transactions, 2)
	deduction := up.Transactions[1]
	assert.Equal(t, core.PointsDeducted, deduction.Type)
	assert.Equal(t, int64(-4), deduction.Points)
	assert.Equal(t, "admin-1", deduction.Actor)
}

func TestDeductBelowZeroFails(t *testing.T) {
	ledger := NewLedger(memstore.New())
	ctx := context.Background()

	_, err := ledger.Award(ctx, "usr-1", 3, "seed")
	require.NoError(t, err)

	_, err = ledger.Deduct(ctx, "usr-1", 5, "too much", "admin-1")
	assert.True(t, apperrors.Is(err, apperrors.CodeInsufficientPoints))

	// Balance unchanged after the failed deduction.
	up, err := ledger.Get(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), up.TotalPoints)
	assert.Len(t, up.Transactions, 1)
}

func TestGetUnknownUserIsZero(t *testing.T) {
	ledger := NewLedger(memstore.New())
	up, err := ledger.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), up.TotalPoints)
	assert.Empty(t, up.Transactions)
}
