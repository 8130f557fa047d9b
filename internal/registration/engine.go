// Package registration issues tickets. Free events register directly
// (or queue a join request when the event gates on approval); paid
// events are issued only through the payment orchestrator, idempotent
// on the gateway payment id.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/points"
	"github.com/appovenbackend/ticketing/internal/qrtoken"
)

// Store is the persistence the engine needs. Ticket creation is
// transactional with the subscription append and, for paid tickets,
// the points award.
type Store interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetEvent(ctx context.Context, id string) (*core.Event, error)
	GetTicket(ctx context.Context, id string) (*core.Ticket, error)
	GetTicketByPaymentID(ctx context.Context, paymentID string) (*core.Ticket, error)
	HasTicket(ctx context.Context, userID, eventID string) (bool, error)
	ListUserTickets(ctx context.Context, userID string) ([]core.Ticket, error)
	CreateFreeTicket(ctx context.Context, t *core.Ticket) error
	CreatePaidTicket(ctx context.Context, t *core.Ticket, award *core.PointsAward) error
	CreateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error
	GetJoinRequestByUserEvent(ctx context.Context, userID, eventID string) (*core.EventJoinRequest, error)
	UpdateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error
}

type Engine struct {
	store Store
	codec *qrtoken.Codec
	now   func() time.Time
}

func NewEngine(store Store, codec *qrtoken.Codec) *Engine {
	return &Engine{store: store, codec: codec, now: time.Now}
}

// Result is the outcome of a free registration: either an issued
// ticket, or a pending join request when the event gates on approval.
type Result struct {
	Ticket          *core.Ticket           `json:"ticket,omitempty"`
	JoinRequest     *core.EventJoinRequest `json:"join_request,omitempty"`
	PendingApproval bool                   `json:"pending_approval"`
}

// RegisterFree registers a user for a free event. Preconditions run in
// a fixed order so callers see stable error codes.
func (e *Engine) RegisterFree(ctx context.Context, userID, eventID string) (*Result, error) {
	user, event, err := e.loadPair(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if !event.EndAt.After(now) {
		return nil, apperrors.EventExpired(eventID)
	}
	if !event.IsFree() {
		return nil, apperrors.PaidEventRequiresPayment()
	}
	if !event.IsActive {
		return nil, apperrors.EventInactive(eventID)
	}
	if !event.RegistrationOpen {
		return nil, apperrors.EventClosed(eventID)
	}

	if err := e.checkNotRegistered(ctx, user, eventID); err != nil {
		return nil, err
	}

	if event.RequiresApproval {
		req, err := e.queueJoinRequest(ctx, userID, eventID)
		if err != nil {
			return nil, err
		}
		return &Result{JoinRequest: req, PendingApproval: true}, nil
	}

	ticket, err := e.IssueFreeTicket(ctx, userID, event)
	if err != nil {
		return nil, err
	}
	return &Result{Ticket: ticket}, nil
}

// IssueFreeTicket creates a free ticket without re-running the
// registration preconditions. The join-request reviewer uses it after
// approving a request.
func (e *Engine) IssueFreeTicket(ctx context.Context, userID string, event *core.Event) (*core.Ticket, error) {
	now := e.now()
	t := &core.Ticket{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		UserID:            userID,
		IssuedAt:          now,
		ValidationHistory: []core.ScanEntry{},
		Meta:              core.TicketMeta{Kind: core.TicketFree},
	}
	token, err := e.codec.Encode(t.ID, userID, event.ID, now, &event.EndAt)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	t.QRToken = token

	if err := e.store.CreateFreeTicket(ctx, t); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return nil, apperrors.DuplicateRegistration()
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("free ticket issued", "ticket_id", t.ID, "user_id", userID, "event_id", event.ID)
	return t, nil
}

// IssuePaidTicket creates a paid ticket plus its points award in one
// transaction. Idempotent on the gateway payment id: replays return
// the already-issued ticket.
func (e *Engine) IssuePaidTicket(ctx context.Context, userID, eventID string, amountMinorUnits int64, orderID, paymentID string) (*core.Ticket, error) {
	if existing, err := e.store.GetTicketByPaymentID(ctx, paymentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}

	event, err := e.store.GetEvent(ctx, eventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(eventID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	now := e.now()
	t := &core.Ticket{
		ID:                uuid.NewString(),
		EventID:           eventID,
		UserID:            userID,
		IssuedAt:          now,
		ValidationHistory: []core.ScanEntry{},
		Meta: core.TicketMeta{
			Kind:             core.TicketPaid,
			AmountMinorUnits: amountMinorUnits,
			OrderID:          orderID,
			PaymentID:        paymentID,
		},
	}
	token, err := e.codec.Encode(t.ID, userID, eventID, now, &event.EndAt)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	t.QRToken = token

	award := &core.PointsAward{
		UserID: userID,
		Points: points.PaidRegistrationPoints(amountMinorUnits),
		Reason: points.PaidRegistrationReason(event.Title),
	}

	if err := e.store.CreatePaidTicket(ctx, t, award); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			// Lost a race on the same payment id; the winner's
			// ticket is authoritative.
			existing, refetchErr := e.store.GetTicketByPaymentID(ctx, paymentID)
			if refetchErr != nil {
				return nil, apperrors.Database(refetchErr)
			}
			return existing, nil
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("paid ticket issued", "ticket_id", t.ID, "user_id", userID,
		"event_id", eventID, "payment_id", paymentID, "points", award.Points)
	return t, nil
}

// GetTicket returns one ticket; only its owner or an admin may read it.
func (e *Engine) GetTicket(ctx context.Context, ticketID, callerID string, callerRole core.Role) (*core.Ticket, error) {
	t, err := e.store.GetTicket(ctx, ticketID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.TicketNotFound(ticketID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if t.UserID != callerID && callerRole != core.RoleAdmin {
		return nil, apperrors.Forbidden("not your ticket")
	}
	return t, nil
}

// ListUserTickets returns a user's tickets, newest first.
func (e *Engine) ListUserTickets(ctx context.Context, userID string) ([]core.Ticket, error) {
	tickets, err := e.store.ListUserTickets(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return tickets, nil
}

func (e *Engine) loadPair(ctx context.Context, userID, eventID string) (*core.User, *core.Event, error) {
	user, err := e.store.GetUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, apperrors.UserNotFound(userID)
	}
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	event, err := e.store.GetEvent(ctx, eventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil, apperrors.EventNotFound(eventID)
	}
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	return user, event, nil
}

func (e *Engine) checkNotRegistered(ctx context.Context, user *core.User, eventID string) error {
	if user.IsSubscribed(eventID) {
		return apperrors.DuplicateRegistration()
	}
	has, err := e.store.HasTicket(ctx, user.ID, eventID)
	if err != nil {
		return apperrors.Database(err)
	}
	if has {
		return apperrors.DuplicateRegistration()
	}
	return nil
}

func (e *Engine) queueJoinRequest(ctx context.Context, userID, eventID string) (*core.EventJoinRequest, error) {
	if existing, err := e.store.GetJoinRequestByUserEvent(ctx, userID, eventID); err == nil {
		switch existing.Status {
		case core.JoinPending, core.JoinAccepted:
			return existing, nil
		case core.JoinRejected:
			existing.Status = core.JoinPending
			existing.RequestedAt = e.now()
			existing.ReviewedAt = nil
			existing.ReviewedBy = ""
			if err := e.store.UpdateJoinRequest(ctx, existing); err != nil {
				return nil, apperrors.Database(err)
			}
			slog.Info("join request revived", "request_id", existing.ID, "user_id", userID, "event_id", eventID)
			return existing, nil
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}

	req := &core.EventJoinRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventID:     eventID,
		Status:      core.JoinPending,
		RequestedAt: e.now(),
	}
	if err := e.store.CreateJoinRequest(ctx, req); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			existing, refetchErr := e.store.GetJoinRequestByUserEvent(ctx, userID, eventID)
			if refetchErr != nil {
				return nil, apperrors.Database(refetchErr)
			}
			return existing, nil
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("join request queued", "request_id", req.ID, "user_id", userID, "event_id", eventID)
	return req, nil
}
