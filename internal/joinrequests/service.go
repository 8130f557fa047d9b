// Package joinrequests handles approval-gated registration: the queue
// of pending requests and the organizer review that turns an accepted
// request into a ticket.
package joinrequests

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
)

// Store is the persistence the service needs.
type Store interface {
	GetEvent(ctx context.Context, id string) (*core.Event, error)
	CreateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*core.EventJoinRequest, error)
	GetJoinRequestByUserEvent(ctx context.Context, userID, eventID string) (*core.EventJoinRequest, error)
	UpdateJoinRequest(ctx context.Context, r *core.EventJoinRequest) error
	ListJoinRequests(ctx context.Context, eventID string, status core.JoinRequestStatus) ([]core.EventJoinRequest, error)
}

// Issuer creates the ticket for an accepted request.
type Issuer interface {
	IssueFreeTicket(ctx context.Context, userID string, event *core.Event) (*core.Ticket, error)
}

type Service struct {
	store  Store
	issuer Issuer
	now    func() time.Time
}

func NewService(store Store, issuer Issuer) *Service {
	return &Service{store: store, issuer: issuer, now: time.Now}
}

// Request queues a join request for an approval-gated event. A second
// request while one is pending returns the pending one; a request
// after rejection revives the rejected one back to pending.
func (s *Service) Request(ctx context.Context, userID, eventID string) (*core.EventJoinRequest, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(eventID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if !event.RequiresApproval {
		return nil, apperrors.InvalidInput("event does not require approval").WithField("event_id")
	}
	if !event.EndAt.After(s.now()) {
		return nil, apperrors.EventExpired(eventID)
	}

	existing, err := s.store.GetJoinRequestByUserEvent(ctx, userID, eventID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		switch existing.Status {
		case core.JoinPending, core.JoinAccepted:
			return existing, nil
		case core.JoinRejected:
			existing.Status = core.JoinPending
			existing.RequestedAt = s.now()
			existing.ReviewedAt = nil
			existing.ReviewedBy = ""
			if err := s.store.UpdateJoinRequest(ctx, existing); err != nil {
				return nil, apperrors.Database(err)
			}
			slog.Info("join request revived", "request_id", existing.ID)
			return existing, nil
		}
	}

	req := &core.EventJoinRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		EventID:     eventID,
		Status:      core.JoinPending,
		RequestedAt: s.now(),
	}
	if err := s.store.CreateJoinRequest(ctx, req); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			revived, refetchErr := s.store.GetJoinRequestByUserEvent(ctx, userID, eventID)
			if refetchErr != nil {
				return nil, apperrors.Database(refetchErr)
			}
			return revived, nil
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("join request created", "request_id", req.ID, "user_id", userID, "event_id", eventID)
	return req, nil
}

// ReviewResult is a reviewed request plus the ticket issued on accept.
type ReviewResult struct {
	Request *core.EventJoinRequest `json:"request"`
	Ticket  *core.Ticket           `json:"ticket,omitempty"`
}

// Review accepts or rejects a pending request. Accepting issues the
// ticket; the review record survives even if the user later releases
// the ticket.
func (s *Service) Review(ctx context.Context, requestID, reviewerID string, accept bool) (*ReviewResult, error) {
	req, err := s.store.GetJoinRequest(ctx, requestID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.RequestNotFound(requestID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if req.Status != core.JoinPending {
		return nil, apperrors.InvalidInput("request is not pending")
	}

	now := s.now()
	req.ReviewedAt = &now
	req.ReviewedBy = reviewerID

	if !accept {
		req.Status = core.JoinRejected
		if err := s.store.UpdateJoinRequest(ctx, req); err != nil {
			return nil, apperrors.Database(err)
		}
		slog.Info("join request rejected", "request_id", req.ID, "reviewer", reviewerID)
		return &ReviewResult{Request: req}, nil
	}

	event, err := s.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(req.EventID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	ticket, err := s.issuer.IssueFreeTicket(ctx, req.UserID, event)
	if err != nil && !apperrors.Is(err, apperrors.CodeDuplicateRegistration) {
		return nil, err
	}

	req.Status = core.JoinAccepted
	if err := s.store.UpdateJoinRequest(ctx, req); err != nil {
		return nil, apperrors.Database(err)
	}
	slog.Info("join request accepted", "request_id", req.ID, "reviewer", reviewerID)
	return &ReviewResult{Request: req, Ticket: ticket}, nil
}

// List returns an event's requests, optionally filtered by status.
func (s *Service) List(ctx context.Context, eventID string, status core.JoinRequestStatus) ([]core.EventJoinRequest, error) {
	if status != "" && status != core.JoinPending && status != core.JoinAccepted && status != core.JoinRejected {
		return nil, apperrors.InvalidInput("unknown status").WithField("status")
	}
	out, err := s.store.ListJoinRequests(ctx, eventID, status)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return out, nil
}

// Get returns one request, visible to its owner or an admin.
func (s *Service) Get(ctx context.Context, requestID, callerID string, callerRole core.Role) (*core.EventJoinRequest, error) {
	req, err := s.store.GetJoinRequest(ctx, requestID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.RequestNotFound(requestID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if req.UserID != callerID && callerRole != core.RoleAdmin && callerRole != core.RoleOrganizer {
		return nil, apperrors.Forbidden("not your request")
	}
	return req, nil
}
