// Package payments runs the paid registration flow: order creation
// against the gateway, checkout signature verification, webhook
// reconciliation, and the audit trail every transition leaves behind.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
)

// orderTTL bounds how long a pending order stays claimable before the
// sweeper cancels it.
const orderTTL = 30 * time.Minute

// Store is the persistence the orchestrator needs. Order creation and
// status transitions carry their audit rows in the same transaction.
type Store interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetEvent(ctx context.Context, id string) (*core.Event, error)
	HasTicket(ctx context.Context, userID, eventID string) (bool, error)
	CreateOrder(ctx context.Context, o *core.PaymentOrder, audit core.PaymentAuditEntry) error
	GetOrderByGatewayID(ctx context.Context, gatewayOrderID string) (*core.PaymentOrder, error)
	GetPendingOrderByReceipt(ctx context.Context, receipt string) (*core.PaymentOrder, error)
	TransitionOrder(ctx context.Context, orderID string, from, to core.OrderStatus, audit core.PaymentAuditEntry) (bool, error)
	SavePayment(ctx context.Context, pay *core.Payment) error
	AppendAudit(ctx context.Context, audit core.PaymentAuditEntry) error
	ListAudit(ctx context.Context, orderID string) ([]core.PaymentAuditEntry, error)
	CancelExpiredOrders(ctx context.Context, now time.Time) (int64, error)
}

// Issuer is the paid-ticket issuance path; idempotent on payment id.
type Issuer interface {
	IssuePaidTicket(ctx context.Context, userID, eventID string, amountMinorUnits int64, orderID, paymentID string) (*core.Ticket, error)
}

type Orchestrator struct {
	store         Store
	gateway       Gateway
	issuer        Issuer
	keySecret     string
	webhookSecret string
	now           func() time.Time
}

func NewOrchestrator(store Store, gateway Gateway, issuer Issuer, keySecret, webhookSecret string) *Orchestrator {
	return &Orchestrator{
		store:         store,
		gateway:       gateway,
		issuer:        issuer,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// Receipt derives the idempotency key for one (user, event) purchase.
func Receipt(userID, eventID string) string {
	return fmt.Sprintf("rcpt_%s_%s", userID, eventID)
}

// CreateOrder opens a gateway order for a paid event. A live pending
// order for the same (user, event) is returned as-is instead of
// opening a second one.
func (o *Orchestrator) CreateOrder(ctx context.Context, userID, eventID string) (*core.PaymentOrder, error) {
	user, err := o.store.GetUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.UserNotFound(userID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	event, err := o.store.GetEvent(ctx, eventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(eventID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	now := o.now()
	if !event.EndAt.After(now) {
		return nil, apperrors.EventExpired(eventID)
	}
	if event.IsFree() {
		return nil, apperrors.FreeEventRejected()
	}
	if !event.IsActive {
		return nil, apperrors.EventInactive(eventID)
	}
	if !event.RegistrationOpen {
		return nil, apperrors.EventClosed(eventID)
	}

	if user.IsSubscribed(eventID) {
		return nil, apperrors.DuplicateRegistration()
	}
	has, err := o.store.HasTicket(ctx, userID, eventID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if has {
		return nil, apperrors.DuplicateRegistration()
	}

	receipt := Receipt(userID, eventID)
	if pending, err := o.store.GetPendingOrderByReceipt(ctx, receipt); err == nil {
		return pending, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}

	resp, err := o.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   event.PriceMinorUnits,
		Currency: "INR",
		Receipt:  receipt,
		Notes:    map[string]string{"eventId": eventID},
	})
	if err != nil {
		return nil, apperrors.GatewayUnavailable(err)
	}

	order := &core.PaymentOrder{
		ID:               uuid.NewString(),
		GatewayOrderID:   resp.ID,
		UserID:           userID,
		EventID:          eventID,
		AmountMinorUnits: event.PriceMinorUnits,
		Currency:         "INR",
		Status:           core.OrderPending,
		Receipt:          receipt,
		ExpiresAt:        now.Add(orderTTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	audit := core.PaymentAuditEntry{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Action:    "order_created",
		NewStatus: string(core.OrderPending),
		Details:   fmt.Sprintf("gateway order %s, amount %d", resp.ID, order.AmountMinorUnits),
		Actor:     userID,
		CreatedAt: now,
	}
	if err := o.store.CreateOrder(ctx, order, audit); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			existing, refetchErr := o.store.GetOrderByGatewayID(ctx, resp.ID)
			if refetchErr != nil {
				return nil, apperrors.Database(refetchErr)
			}
			return existing, nil
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("payment order created", "order_id", order.ID,
		"gateway_order_id", resp.ID, "user_id", userID, "event_id", eventID,
		"amount", order.AmountMinorUnits)
	return order, nil
}

// VerifyInput is the checkout callback: what the client received from
// the gateway after the user paid.
type VerifyInput struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// VerifyAndIssue validates the checkout signature and issues the paid
// ticket. Safe to replay: a repeated callback returns the already-
// issued ticket.
func (o *Orchestrator) VerifyAndIssue(ctx context.Context, callerID string, in VerifyInput) (*core.Ticket, error) {
	if in.GatewayOrderID == "" || in.GatewayPaymentID == "" || in.Signature == "" {
		return nil, apperrors.InvalidInput("gateway_order_id, gateway_payment_id and signature are required")
	}

	order, err := o.store.GetOrderByGatewayID(ctx, in.GatewayOrderID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.OrderNotFound(in.GatewayOrderID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if order.UserID != callerID {
		return nil, apperrors.Forbidden("order belongs to another user")
	}

	if !VerifySignature(o.keySecret, in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		o.audit(ctx, core.PaymentAuditEntry{
			OrderID:   order.ID,
			PaymentID: in.GatewayPaymentID,
			Action:    "signature_rejected",
			Details:   "checkout signature mismatch",
			Actor:     callerID,
		})
		slog.Warn("payment signature rejected", "order_id", order.ID, "payment_id", in.GatewayPaymentID)
		return nil, apperrors.InvalidSignature()
	}

	event, err := o.store.GetEvent(ctx, order.EventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(order.EventID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if event.IsFree() {
		return nil, apperrors.FreeEventRejected()
	}

	ticket, err := o.issuer.IssuePaidTicket(ctx, order.UserID, order.EventID,
		order.AmountMinorUnits, order.ID, in.GatewayPaymentID)
	if err != nil {
		return nil, err
	}

	if err := o.store.SavePayment(ctx, &core.Payment{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		GatewayPaymentID: in.GatewayPaymentID,
		GatewaySignature: in.Signature,
		AmountPaid:       order.AmountMinorUnits,
		Status:           "captured",
		CreatedAt:        o.now(),
	}); err != nil {
		return nil, apperrors.Database(err)
	}

	moved, err := o.store.TransitionOrder(ctx, order.ID, core.OrderPending, core.OrderSuccess,
		core.PaymentAuditEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			PaymentID: in.GatewayPaymentID,
			Action:    "payment_verified",
			Details:   "checkout signature verified, ticket " + ticket.ID,
			Actor:     callerID,
			CreatedAt: o.now(),
		})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if moved {
		slog.Info("payment verified", "order_id", order.ID,
			"payment_id", in.GatewayPaymentID, "ticket_id", ticket.ID)
	}
	return ticket, nil
}

// webhookEnvelope is the provider's webhook shape.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Status           string `json:"status"`
				Method           string `json:"method"`
				Amount           int64  `json:"amount"`
				ErrorCode        string `json:"error_code"`
				ErrorDescription string `json:"error_description"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies and applies a gateway webhook. Captured
// payments act as a safety net: if the checkout callback never arrived
// the ticket is issued here.
func (o *Orchestrator) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !VerifyWebhookSignature(o.webhookSecret, body, signature) {
		slog.Warn("webhook signature rejected")
		return apperrors.InvalidWebhookSignature()
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return apperrors.InvalidInput("malformed webhook body")
	}
	entity := env.Payload.Payment.Entity

	switch env.Event {
	case "payment.authorized":
		slog.Info("payment authorized", "gateway_order_id", entity.OrderID, "payment_id", entity.ID)
		return nil
	case "payment.captured":
		return o.applyCaptured(ctx, entity.OrderID, entity.ID, entity.Method, entity.Amount)
	case "payment.failed":
		return o.applyFailed(ctx, entity.OrderID, entity.ID, entity.ErrorCode, entity.ErrorDescription)
	default:
		slog.Info("webhook event ignored", "event", env.Event)
		return nil
	}
}

func (o *Orchestrator) applyCaptured(ctx context.Context, gatewayOrderID, paymentID, method string, amount int64) error {
	order, err := o.store.GetOrderByGatewayID(ctx, gatewayOrderID)
	if errors.Is(err, core.ErrNotFound) {
		slog.Warn("webhook for unknown order", "gateway_order_id", gatewayOrderID)
		return nil
	}
	if err != nil {
		return apperrors.Database(err)
	}

	ticket, err := o.issuer.IssuePaidTicket(ctx, order.UserID, order.EventID,
		order.AmountMinorUnits, order.ID, paymentID)
	if err != nil {
		return err
	}

	if err := o.store.SavePayment(ctx, &core.Payment{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		GatewayPaymentID: paymentID,
		AmountPaid:       amount,
		Status:           "captured",
		Method:           method,
		CreatedAt:        o.now(),
	}); err != nil {
		return apperrors.Database(err)
	}

	moved, err := o.store.TransitionOrder(ctx, order.ID, core.OrderPending, core.OrderSuccess,
		core.PaymentAuditEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			PaymentID: paymentID,
			Action:    "webhook_captured",
			Details:   "ticket " + ticket.ID,
			Actor:     "webhook",
			CreatedAt: o.now(),
		})
	if err != nil {
		return apperrors.Database(err)
	}
	if moved {
		slog.Info("webhook issued ticket", "order_id", order.ID,
			"payment_id", paymentID, "ticket_id", ticket.ID)
	}
	return nil
}

func (o *Orchestrator) applyFailed(ctx context.Context, gatewayOrderID, paymentID, errCode, errDesc string) error {
	order, err := o.store.GetOrderByGatewayID(ctx, gatewayOrderID)
	if errors.Is(err, core.ErrNotFound) {
		slog.Warn("webhook for unknown order", "gateway_order_id", gatewayOrderID)
		return nil
	}
	if err != nil {
		return apperrors.Database(err)
	}

	if err := o.store.SavePayment(ctx, &core.Payment{
		ID:               uuid.NewString(),
		OrderID:          order.ID,
		GatewayPaymentID: paymentID,
		Status:           "failed",
		ErrorCode:        errCode,
		ErrorDescription: errDesc,
		CreatedAt:        o.now(),
	}); err != nil {
		return apperrors.Database(err)
	}

	moved, err := o.store.TransitionOrder(ctx, order.ID, core.OrderPending, core.OrderFailed,
		core.PaymentAuditEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			PaymentID: paymentID,
			Action:    "webhook_failed",
			Details:   errCode + ": " + errDesc,
			Actor:     "webhook",
			CreatedAt: o.now(),
		})
	if err != nil {
		return apperrors.Database(err)
	}
	if moved {
		slog.Info("order failed", "order_id", order.ID, "payment_id", paymentID, "error_code", errCode)
	}
	return nil
}

// Audit returns the append-only trail for one order.
func (o *Orchestrator) Audit(ctx context.Context, orderID string) ([]core.PaymentAuditEntry, error) {
	out, err := o.store.ListAudit(ctx, orderID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return out, nil
}

// CleanupExpired cancels pending orders past their expiry.
func (o *Orchestrator) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := o.store.CancelExpiredOrders(ctx, o.now())
	if err != nil {
		return 0, apperrors.Database(err)
	}
	if n > 0 {
		slog.Info("expired orders cancelled", "count", n)
	}
	return n, nil
}

func (o *Orchestrator) audit(ctx context.Context, entry core.PaymentAuditEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = o.now()
	if err := o.store.AppendAudit(ctx, entry); err != nil {
		slog.Error("audit append failed", "order_id", entry.OrderID, "action", entry.Action, "error", err)
	}
}
