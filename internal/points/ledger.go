// Package points keeps the per-user points balance and its append-only
// transaction history. The balance is always the algebraic sum of the
// transactions; both are written atomically by the store.
package points

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
)

// FreeValidationPoints is earned once per free ticket, at first
// validation rather than at registration.
const FreeValidationPoints = 2

// minorUnitsPerPoint converts a paid amount to its points base:
// 10000 minor units (100 major) per point.
const minorUnitsPerPoint = 10000

// PaidRegistrationPoints computes the earn for a paid ticket:
// ceil(amount / 10000) + 2.
func PaidRegistrationPoints(amountMinorUnits int64) int64 {
	return (amountMinorUnits+minorUnitsPerPoint-1)/minorUnitsPerPoint + 2
}

// PaidRegistrationReason is the ledger reason for a paid issuance.
func PaidRegistrationReason(eventTitle string) string {
	return "paid registration for " + eventTitle
}

// FreeValidationReason is the ledger reason for a first free-ticket scan.
func FreeValidationReason(eventTitle string) string {
	return "free event validation for " + eventTitle
}

// Store is the persistence the ledger needs.
type Store interface {
	ApplyPointsTx(ctx context.Context, userID string, tx core.PointsTransaction) (int64, error)
	GetPoints(ctx context.Context, userID string) (*core.UserPoints, error)
	ListPointsTransactions(ctx context.Context, userID string, limit int) ([]core.PointsTransaction, error)
}

type Ledger struct {
	store Store
	now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// Award appends an earned transaction and returns the new balance.
func (l *Ledger) Award(ctx context.Context, userID string, points int64, reason string) (int64, error) {
	if points <= 0 {
		return 0, apperrors.InvalidInput("points must be positive").WithField("points")
	}
	balance, err := l.store.ApplyPointsTx(ctx, userID, core.PointsTransaction{
		Type:      core.PointsEarned,
		Points:    points,
		Reason:    reason,
		Timestamp: l.now(),
	})
	if err != nil {
		return 0, apperrors.Database(err)
	}
	slog.Info("points awarded", "user_id", userID, "points", points, "reason", reason)
	return balance, nil
}

// Deduct appends a deducted transaction with negative signed points,
// recording the admin who ordered it. Fails when the balance would go
// negative.
func (l *Ledger) Deduct(ctx context.Context, userID string, points int64, reason, actor string) (int64, error) {
	if points <= 0 {
		return 0, apperrors.InvalidInput("points must be positive").WithField("points")
	}
	balance, err := l.store.ApplyPointsTx(ctx, userID, core.PointsTransaction{
		Type:      core.PointsDeducted,
		Points:    -points,
		Reason:    reason,
		Actor:     actor,
		Timestamp: l.now(),
	})
	if errors.Is(err, core.ErrInsufficientPoints) {
		return 0, apperrors.InsufficientPoints()
	}
	if err != nil {
		return 0, apperrors.Database(err)
	}
	slog.Info("points deducted", "user_id", userID, "points", points, "actor", actor)
	return balance, nil
}

// Get returns balance plus history for one user.
func (l *Ledger) Get(ctx context.Context, userID string) (*core.UserPoints, error) {
	up, err := l.store.GetPoints(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return up, nil
}

// ListTransactions returns recent transactions, optionally scoped to
// one user.
func (l *Ledger) ListTransactions(ctx context.Context, userID string, limit int) ([]core.PointsTransaction, error) {
	txs, err := l.store.ListPointsTransactions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return txs, nil
}
