// Package validation decides entry at the door: it verifies a scanned
// QR token against the stored ticket and marks the ticket used exactly
// once, no matter how many validators race on it.
package validation

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

// Outcome statuses. Exactly one scan of a ticket reports StatusValid.
const (
	StatusValid          = "valid"
	StatusAlreadyScanned = "already_scanned"
	StatusInvalid        = "invalid"
)

// Rejection reasons for StatusInvalid.
const (
	ReasonInvalidToken   = "invalid_token"
	ReasonTokenExpired   = "token_expired"
	ReasonEventMismatch  = "event_mismatch"
	ReasonTicketNotFound = "ticket_not_found"
	ReasonClaimMismatch  = "claim_mismatch"
	ReasonEventExpired   = "event_expired"
)

// Store is the persistence the engine needs. ValidateTicket is the
// atomic mark-used operation; its second return is false when the
// ticket was already validated.
type Store interface {
	GetTicket(ctx context.Context, id string) (*core.Ticket, error)
	GetUser(ctx context.Context, id string) (*core.User, error)
	GetEvent(ctx context.Context, id string) (*core.Event, error)
	ValidateTicket(ctx context.Context, ticketID string, entry core.ScanEntry, award *core.PointsAward) (*core.Ticket, bool, error)
	RecordReceivedQR(ctx context.Context, rec *core.ReceivedQRToken) error
}

type Engine struct {
	store Store
	codec *qrtoken.Codec
	now   func() time.Time
}

func NewEngine(store Store, codec *qrtoken.Codec) *Engine {
	return &Engine{store: store, codec: codec, now: time.Now}
}

// ScanInput is one scan relayed by a validator device.
type ScanInput struct {
	Token    string `json:"token"`
	EventID  string `json:"event_id"`
	Device   string `json:"device,omitempty"`
	Operator string `json:"operator,omitempty"`
}

// Result is the outcome reported back to the validator. Ticket, user
// and event are present for valid and already_scanned outcomes so the
// operator can see who is at the door.
type Result struct {
	Status        string           `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Ticket        *core.Ticket     `json:"ticket,omitempty"`
	User          *core.User       `json:"user,omitempty"`
	Event         *core.Event      `json:"event,omitempty"`
	History       []core.ScanEntry `json:"history,omitempty"`
	PointsAwarded bool             `json:"points_awarded"`
}

// Validate runs one scan end to end. Every scan is recorded for audit,
// valid or not.
func (e *Engine) Validate(ctx context.Context, in ScanInput) (*Result, error) {
	if in.EventID == "" {
		return nil, apperrors.InvalidInput("event_id is required").WithField("event_id")
	}
	e.recordScan(ctx, in)

	now := e.now()
	claims, err := e.codec.Decode(in.Token, now)
	if errors.Is(err, qrtoken.ErrTokenExpired) {
		return e.reject(in, ReasonTokenExpired), nil
	}
	if err != nil {
		return e.reject(in, ReasonInvalidToken), nil
	}

	if claims.EventID != in.EventID {
		return e.reject(in, ReasonEventMismatch), nil
	}

	ticket, err := e.store.GetTicket(ctx, claims.TicketID)
	if errors.Is(err, core.ErrNotFound) {
		return e.reject(in, ReasonTicketNotFound), nil
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if ticket.UserID != claims.UserID || ticket.EventID != claims.EventID {
		return e.reject(in, ReasonClaimMismatch), nil
	}

	event, err := e.store.GetEvent(ctx, ticket.EventID)
	if errors.Is(err, core.ErrNotFound) {
		return e.reject(in, ReasonEventMismatch), nil
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if event.IsExpired(now) {
		return e.reject(in, ReasonEventExpired), nil
	}
	// Expiry is recomputed from the stored event end so a tampered exp
	// claim cannot outlive the event.
	if qrtoken.ExpiryEpoch(ticket.IssuedAt, &event.EndAt) <= now.UTC().Unix() {
		return e.reject(in, ReasonTokenExpired), nil
	}

	var award *core.PointsAward
	if ticket.Meta.Kind == core.TicketFree && !ticket.IsValidated {
		award = &core.PointsAward{
			UserID: ticket.UserID,
			Points: points.FreeValidationPoints,
			Reason: points.FreeValidationReason(event.Title),
		}
	}

	entry := core.ScanEntry{Timestamp: now, Device: in.Device, Operator: in.Operator}
	updated, first, err := e.store.ValidateTicket(ctx, ticket.ID, entry, award)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	user, err := e.store.GetUser(ctx, updated.UserID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}

	res := &Result{
		Ticket:  updated,
		User:    user,
		Event:   event,
		History: updated.ValidationHistory,
	}
	if first {
		res.Status = StatusValid
		res.PointsAwarded = award != nil
		slog.Info("ticket validated", "ticket_id", updated.ID,
			"event_id", event.ID, "points_awarded", res.PointsAwarded)
	} else {
		res.Status = StatusAlreadyScanned
		slog.Info("ticket already scanned", "ticket_id", updated.ID, "event_id", event.ID)
	}
	return res, nil
}

func (e *Engine) reject(in ScanInput, reason string) *Result {
	slog.Info("scan rejected", "event_id", in.EventID, "reason", reason, "device", in.Device)
	return &Result{Status: StatusInvalid, Reason: reason}
}

func (e *Engine) recordScan(ctx context.Context, in ScanInput) {
	rec := &core.ReceivedQRToken{
		ID:         uuid.NewString(),
		Token:      in.Token,
		EventID:    in.EventID,
		ReceivedAt: e.now(),
		Source:     in.Device,
	}
	if err := e.store.RecordReceivedQR(ctx, rec); err != nil {
		slog.Warn("scan audit record failed", "event_id", in.EventID, "error", err)
	}
}
