package joinrequests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/qrtoken"
	"github.com/appovenbackend/ticketing/internal/registration"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	issuer := registration.NewEngine(st, qrtoken.NewCodec("qr-test-secret"))
	s := NewService(st, issuer)
	s.now = func() time.Time { return testClock }
	return s, st
}

func seedGatedEvent(t *testing.T, st *memstore.Store, id string) *core.Event {
	t.Helper()
	e := &core.Event{
		ID: id, Title: "Gated " + id, IsActive: true, RegistrationOpen: true,
		RequiresApproval: true,
		StartAt:          testClock.Add(24 * time.Hour), EndAt: testClock.Add(27 * time.Hour),
		CreatedAt: testClock,
	}
	require.NoError(t, st.CreateEvent(context.Background(), e))
	return e
}

func seedUser(t *testing.T, st *memstore.Store, id string) {
	t.Helper()
	require.NoError(t, st.CreateUser(context.Background(), &core.User{
		ID: id, Name: "User " + id, Role: core.RoleUser, CreatedAt: testClock,
	}))
}

func TestRequestQueuesPending(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedGatedEvent(t, st, "evt-1")

	req, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, core.JoinPending, req.Status)
	assert.Equal(t, testClock, req.RequestedAt)

	// Asking again while pending returns the same request.
	again, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, again.ID)
}

func TestRequestPreconditions(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")

	_, err := s.Request(ctx, "usr-1", "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventNotFound))

	open := &core.Event{
		ID: "evt-open", Title: "Open", IsActive: true, RegistrationOpen: true,
		StartAt: testClock.Add(time.Hour), EndAt: testClock.Add(2 * time.Hour),
		CreatedAt: testClock,
	}
	require.NoError(t, st.CreateEvent(ctx, open))
	_, err = s.Request(ctx, "usr-1", "evt-open")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	ended := seedGatedEvent(t, st, "evt-ended")
	ended.EndAt = testClock.Add(-time.Hour)
	require.NoError(t, st.UpdateEvent(ctx, ended))
	_, err = s.Request(ctx, "usr-1", "evt-ended")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventExpired))
}

func TestReviewAcceptIssuesTicket(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedGatedEvent(t, st, "evt-1")

	req, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	res, err := s.Review(ctx, req.ID, "org-1", true)
	require.NoError(t, err)
	assert.Equal(t, core.JoinAccepted, res.Request.Status)
	assert.Equal(t, "org-1", res.Request.ReviewedBy)
	require.NotNil(t, res.Request.ReviewedAt)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, "usr-1", res.Ticket.UserID)
	assert.Equal(t, core.TicketFree, res.Ticket.Meta.Kind)

	// Re-reviewing a settled request fails.
	_, err = s.Review(ctx, req.ID, "org-1", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestReviewReject(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedGatedEvent(t, st, "evt-1")

	req, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	res, err := s.Review(ctx, req.ID, "org-1", false)
	require.NoError(t, err)
	assert.Equal(t, core.JoinRejected, res.Request.Status)
	assert.Nil(t, res.Ticket)

	// No ticket was issued.
	tickets, err := st.ListUserTickets(ctx, "usr-1")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestRejectedRequestRevives(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedGatedEvent(t, st, "evt-1")

	req, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	_, err = s.Review(ctx, req.ID, "org-1", false)
	require.NoError(t, err)

	revived, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, revived.ID)
	assert.Equal(t, core.JoinPending, revived.Status)
	assert.Nil(t, revived.ReviewedAt)
	assert.Empty(t, revived.ReviewedBy)
}

func TestReviewUnknownRequest(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Review(context.Background(), "missing", "org-1", true)
	assert.True(t, apperrors.Is(err, apperrors.CodeRequestNotFound))
}

func TestListFiltersByStatus(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedUser(t, st, "usr-2")
	seedGatedEvent(t, st, "evt-1")

	r1, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	_, err = s.Request(ctx, "usr-2", "evt-1")
	require.NoError(t, err)
	_, err = s.Review(ctx, r1.ID, "org-1", true)
	require.NoError(t, err)

	pending, err := s.List(ctx, "evt-1", core.JoinPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "usr-2", pending[0].UserID)

	all, err := s.List(ctx, "evt-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.List(ctx, "evt-1", core.JoinRequestStatus("weird"))
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestGetVisibility(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedGatedEvent(t, st, "evt-1")

	req, err := s.Request(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	_, err = s.Get(ctx, req.ID, "usr-1", core.RoleUser)
	assert.NoError(t, err)

	_, err = s.Get(ctx, req.ID, "usr-2", core.RoleUser)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = s.Get(ctx, req.ID, "usr-2", core.RoleOrganizer)
	assert.NoError(t, err)
}
