package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/core"
)

const orderColumns = `id, gateway_order_id, user_id, event_id, amount_minor_units,
	currency, status, receipt, expires_at, created_at, updated_at`

// CreateOrder persists a pending order and its audit row together.
func (p *Postgres) CreateOrder(ctx context.Context, o *core.PaymentOrder, audit core.PaymentAuditEntry) error {
	return p.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payment_orders (id, gateway_order_id, user_id, event_id,
				amount_minor_units, currency, status, receipt, expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			o.ID, o.GatewayOrderID, o.UserID, o.EventID, o.AmountMinorUnits,
			o.Currency, o.Status, o.Receipt, o.ExpiresAt, o.CreatedAt, o.UpdatedAt)
		if isUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, audit)
	})
}

func (p *Postgres) GetOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*core.PaymentOrder, error) {
	var o *core.PaymentOrder
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM payment_orders WHERE gateway_order_id = $1`,
			gatewayOrderID)
		var err error
		o, err = scanOrder(row)
		return err
	})
	return o, err
}

// GetPendingOrderByReceipt supports receipt-keyed idempotent order
// creation: an open order for the same (user, event) is reused instead
// of resubmitted to the gateway.
func (p *Postgres) GetPendingOrderByReceipt(ctx context.Context, receipt string) (*core.PaymentOrder, error) {
	var o *core.PaymentOrder
	err := withRetry(ctx, func() error {
		row := p.db.QueryRowContext(ctx,
			`SELECT `+orderColumns+` FROM payment_orders
			 WHERE receipt = $1 AND status = 'pending' AND expires_at > now()
			 ORDER BY created_at DESC LIMIT 1`, receipt)
		var err error
		o, err = scanOrder(row)
		return err
	})
	return o, err
}

// TransitionOrder moves an order from one status to another with a
// compare-and-set, recording the transition in the audit log. Returns
// false without error when the order was not in the expected status,
// which makes concurrent webhook and verify deliveries idempotent.
func (p *Postgres) TransitionOrder(ctx context.Context, orderID string, from, to core.OrderStatus, audit core.PaymentAuditEntry) (bool, error) {
	var moved bool
	err := p.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE payment_orders SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2`, orderID, from, to)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			moved = false
			return nil
		}
		moved = true
		audit.OldStatus = string(from)
		audit.NewStatus = string(to)
		return insertAudit(ctx, tx, audit)
	})
	return moved, err
}

// SavePayment records a gateway payment attempt; replays of the same
// gateway payment id are ignored.
func (p *Postgres) SavePayment(ctx context.Context, pay *core.Payment) error {
	return withRetry(ctx, func() error {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, gateway_payment_id, gateway_signature,
				amount_paid, status, method, error_code, error_description, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (gateway_payment_id) DO NOTHING`,
			pay.ID, pay.OrderID, pay.GatewayPaymentID, pay.GatewaySignature,
			pay.AmountPaid, pay.Status, pay.Method, pay.ErrorCode,
			pay.ErrorDescription, pay.CreatedAt)
		return err
	})
}

// AppendAudit writes one audit row outside any transition.
func (p *Postgres) AppendAudit(ctx context.Context, audit core.PaymentAuditEntry) error {
	return withRetry(ctx, func() error {
		return p.tx(ctx, func(tx *sql.Tx) error {
			return insertAudit(ctx, tx, audit)
		})
	})
}

// ListAudit returns the audit trail for an order, oldest first.
func (p *Postgres) ListAudit(ctx context.Context, orderID string) ([]core.PaymentAuditEntry, error) {
	var out []core.PaymentAuditEntry
	err := withRetry(ctx, func() error {
		rows, err := p.db.QueryContext(ctx, `
			SELECT id, order_id, payment_id, action, old_status, new_status, details, actor, created_at
			FROM payment_audit_log WHERE order_id = $1 ORDER BY created_at`, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var a core.PaymentAuditEntry
			if err := rows.Scan(&a.ID, &a.OrderID, &a.PaymentID, &a.Action,
				&a.OldStatus, &a.NewStatus, &a.Details, &a.Actor, &a.CreatedAt); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

// CancelExpiredOrders flips stale pending orders to cancelled and
// audits each transition.
func (p *Postgres) CancelExpiredOrders(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := p.tx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE payment_orders SET status = 'cancelled', updated_at = now()
			WHERE status = 'pending' AND expires_at <= $1
			RETURNING id`, now)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			audit := core.PaymentAuditEntry{
				ID:        uuid.NewString(),
				OrderID:   id,
				Action:    "order_expired",
				OldStatus: string(core.OrderPending),
				NewStatus: string(core.OrderCancelled),
				Details:   "expired pending order cancelled by sweeper",
				Actor:     "sweeper",
				CreatedAt: now,
			}
			if err := insertAudit(ctx, tx, audit); err != nil {
				return err
			}
		}
		n = int64(len(ids))
		return nil
	})
	return n, err
}

func insertAudit(ctx context.Context, tx *sql.Tx, a core.PaymentAuditEntry) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payment_audit_log (id, order_id, payment_id, action,
			old_status, new_status, details, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrderID, a.PaymentID, a.Action, a.OldStatus, a.NewStatus,
		a.Details, a.Actor, a.CreatedAt)
	return err
}

func scanOrder(row rowScanner) (*core.PaymentOrder, error) {
	var o core.PaymentOrder
	err := row.Scan(&o.ID, &o.GatewayOrderID, &o.UserID, &o.EventID,
		&o.AmountMinorUnits, &o.Currency, &o.Status, &o.Receipt,
		&o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
