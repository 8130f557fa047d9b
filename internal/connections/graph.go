// Package connections manages the user connection graph and the
// profile visibility rules that depend on it.
package connections

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
)

// Store is the persistence the graph needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	CreateConnection(ctx context.Context, c *core.Connection) error
	GetConnection(ctx context.Context, id string) (*core.Connection, error)
	GetConnectionBetween(ctx context.Context, a, b string) (*core.Connection, error)
	UpdateConnectionStatus(ctx context.Context, id string, status core.ConnectionStatus) error
	DeleteConnection(ctx context.Context, id string) error
	DeleteConnectionBetween(ctx context.Context, a, b string) error
	CountAcceptedConnections(ctx context.Context, userID string) (int, error)
}

type Graph struct {
	store Store
	now   func() time.Time
}

func NewGraph(store Store) *Graph {
	return &Graph{store: store, now: time.Now}
}

// Request creates a connection request from requester to target. When
// the target profile is public the edge is accepted immediately.
func (g *Graph) Request(ctx context.Context, requesterID, targetID string) (*core.Connection, error) {
	if requesterID == targetID {
		return nil, apperrors.InvalidInput("cannot connect to yourself").WithField("target_id")
	}

	target, err := g.store.GetUser(ctx, targetID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.UserNotFound(targetID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	existing, err := g.store.GetConnectionBetween(ctx, requesterID, targetID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.Database(err)
	}
	if existing != nil {
		switch existing.Status {
		case core.ConnectionAccepted:
			return nil, apperrors.AlreadyConnected()
		case core.ConnectionPending:
			return nil, apperrors.AlreadyPending()
		}
	}

	now := g.now()
	conn := &core.Connection{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		TargetID:    targetID,
		Status:      core.ConnectionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !target.IsPrivate {
		conn.Status = core.ConnectionAccepted
	}

	if err := g.store.CreateConnection(ctx, conn); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return nil, apperrors.AlreadyPending()
		}
		return nil, apperrors.Database(err)
	}
	slog.Info("connection requested", "requester", requesterID, "target", targetID, "status", conn.Status)
	return conn, nil
}

// Accept moves a pending request to accepted. Only the target may accept.
func (g *Graph) Accept(ctx context.Context, connectionID, callerID string) (*core.Connection, error) {
	conn, err := g.pendingFor(ctx, connectionID, callerID)
	if err != nil {
		return nil, err
	}
	if err := g.store.UpdateConnectionStatus(ctx, conn.ID, core.ConnectionAccepted); err != nil {
		return nil, apperrors.Database(err)
	}
	conn.Status = core.ConnectionAccepted
	conn.UpdatedAt = g.now()
	slog.Info("connection accepted", "connection_id", conn.ID)
	return conn, nil
}

// Decline removes a pending request. Only the target may decline.
func (g *Graph) Decline(ctx context.Context, connectionID, callerID string) error {
	conn, err := g.pendingFor(ctx, connectionID, callerID)
	if err != nil {
		return err
	}
	if err := g.store.DeleteConnection(ctx, conn.ID); err != nil {
		return apperrors.Database(err)
	}
	slog.Info("connection declined", "connection_id", conn.ID)
	return nil
}

func (g *Graph) pendingFor(ctx context.Context, connectionID, callerID string) (*core.Connection, error) {
	conn, err := g.store.GetConnection(ctx, connectionID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.RequestNotFound(connectionID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if conn.TargetID != callerID {
		return nil, apperrors.Forbidden("only the request target may review it")
	}
	if conn.Status != core.ConnectionPending {
		return nil, apperrors.InvalidInput("request is not pending")
	}
	return conn, nil
}

// Disconnect removes any edge between the caller and the other user,
// in either direction. Removing a nonexistent edge is a no-op.
func (g *Graph) Disconnect(ctx context.Context, callerID, otherID string) error {
	if err := g.store.DeleteConnectionBetween(ctx, callerID, otherID); err != nil {
		return apperrors.Database(err)
	}
	slog.Info("connection removed", "user", callerID, "other", otherID)
	return nil
}

// IsConnected reports whether an accepted edge joins a and b.
func (g *Graph) IsConnected(ctx context.Context, a, b string) (bool, error) {
	conn, err := g.store.GetConnectionBetween(ctx, a, b)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Database(err)
	}
	return conn.Status == core.ConnectionAccepted, nil
}

// Profile is the visibility-filtered projection of a user. Phone and
// email never appear regardless of connection state.
type Profile struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	PictureURL       string   `json:"picture_url,omitempty"`
	IsPrivate        bool     `json:"is_private"`
	ConnectionsCount int      `json:"connections_count"`
	Bio              string   `json:"bio,omitempty"`
	Instagram        string   `json:"instagram,omitempty"`
	Twitter          string   `json:"twitter,omitempty"`
	LinkedIn         string   `json:"linkedin,omitempty"`
	SubscribedEvents []string `json:"subscribed_events,omitempty"`
}

// ViewProfile returns the subject's profile as seen by the viewer. A
// private profile shows only its public header unless the viewer is the
// subject, an admin, or a connection.
func (g *Graph) ViewProfile(ctx context.Context, viewerID string, viewerRole core.Role, subjectID string) (*Profile, error) {
	u, err := g.store.GetUser(ctx, subjectID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.UserNotFound(subjectID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	count, err := g.store.CountAcceptedConnections(ctx, subjectID)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	p := &Profile{
		ID:               u.ID,
		Name:             u.Name,
		PictureURL:       u.PictureURL,
		IsPrivate:        u.IsPrivate,
		ConnectionsCount: count,
	}

	full := viewerID == subjectID || viewerRole == core.RoleAdmin || !u.IsPrivate
	if !full {
		connected, err := g.IsConnected(ctx, viewerID, subjectID)
		if err != nil {
			return nil, err
		}
		full = connected
	}
	if full {
		p.Bio = u.Bio
		p.Instagram = u.Instagram
		p.Twitter = u.Twitter
		p.LinkedIn = u.LinkedIn
		p.SubscribedEvents = u.SubscribedEvents
	}
	return p, nil
}
