package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/qrtoken"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	e := NewEngine(st, qrtoken.NewCodec("qr-test-secret"))
	e.now = func() time.Time { return testClock }
	return e, st
}

func seedUser(t *testing.T, st *memstore.Store, id string) *core.User {
	t.Helper()
	u := &core.User{ID: id, Name: "Runner " + id, Role: core.RoleUser, CreatedAt: testClock}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func seedEvent(t *testing.T, st *memstore.Store, id string, price int64, mutate ...func(*core.Event)) *core.Event {
	t.Helper()
	e := &core.Event{
		ID: id, Title: "Event " + id, IsActive: true, RegistrationOpen: true,
		StartAt: testClock.Add(24 * time.Hour), EndAt: testClock.Add(27 * time.Hour),
		PriceMinorUnits: price, CreatedAt: testClock,
	}
	for _, m := range mutate {
		m(e)
	}
	require.NoError(t, st.CreateEvent(context.Background(), e))
	return e
}

func TestRegisterFreeIssuesTicket(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	ev := seedEvent(t, st, "evt-1", 0)

	res, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	require.NotNil(t, res.Ticket)
	assert.False(t, res.PendingApproval)
	assert.Equal(t, core.TicketFree, res.Ticket.Meta.Kind)
	assert.False(t, res.Ticket.IsValidated)
	assert.NotEmpty(t, res.Ticket.QRToken)

	// Token decodes and binds to the ticket with the event-end expiry.
	claims, err := qrtoken.NewCodec("qr-test-secret").Decode(res.Ticket.QRToken, testClock)
	require.NoError(t, err)
	assert.Equal(t, res.Ticket.ID, claims.TicketID)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, "evt-1", claims.EventID)
	assert.Equal(t, ev.EndAt.Unix(), claims.Exp)

	// Registration subscribes the user.
	u, err := st.GetUser(ctx, "usr-1")
	require.NoError(t, err)
	assert.True(t, u.IsSubscribed("evt-1"))
}

func TestRegisterFreePreconditionOrder(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")

	_, err := eng.RegisterFree(ctx, "usr-1", "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventNotFound))

	_, err = eng.RegisterFree(ctx, "missing", "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeUserNotFound))

	// Ended event: expired wins even though it is also paid and inactive.
	seedEvent(t, st, "evt-ended", 50000, func(e *core.Event) {
		e.EndAt = testClock.Add(-time.Hour)
		e.IsActive = false
	})
	_, err = eng.RegisterFree(ctx, "usr-1", "evt-ended")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventExpired))

	// Paid beats inactive.
	seedEvent(t, st, "evt-paid", 50000, func(e *core.Event) { e.IsActive = false })
	_, err = eng.RegisterFree(ctx, "usr-1", "evt-paid")
	assert.True(t, apperrors.Is(err, apperrors.CodePaidEventRequiresPayment))

	seedEvent(t, st, "evt-inactive", 0, func(e *core.Event) { e.IsActive = false })
	_, err = eng.RegisterFree(ctx, "usr-1", "evt-inactive")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventInactive))

	seedEvent(t, st, "evt-closed", 0, func(e *core.Event) { e.RegistrationOpen = false })
	_, err = eng.RegisterFree(ctx, "usr-1", "evt-closed")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventClosed))
}

func TestRegisterFreeDuplicate(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedEvent(t, st, "evt-1", 0)

	_, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	_, err = eng.RegisterFree(ctx, "usr-1", "evt-1")
	assert.True(t, apperrors.Is(err, apperrors.CodeDuplicateRegistration))
}

func TestRegisterFreeApprovalGated(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedEvent(t, st, "evt-1", 0, func(e *core.Event) { e.RequiresApproval = true })

	res, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Nil(t, res.Ticket)
	assert.True(t, res.PendingApproval)
	require.NotNil(t, res.JoinRequest)
	assert.Equal(t, core.JoinPending, res.JoinRequest.Status)

	// Registering again returns the same pending request, no duplicate.
	res2, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, res.JoinRequest.ID, res2.JoinRequest.ID)
}

func TestRegisterFreeRevivesRejectedRequest(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedEvent(t, st, "evt-1", 0, func(e *core.Event) { e.RequiresApproval = true })

	res, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	// Organizer rejects the queued request.
	rejected := res.JoinRequest
	rejected.Status = core.JoinRejected
	reviewedAt := testClock.Add(time.Hour)
	rejected.ReviewedAt = &reviewedAt
	rejected.ReviewedBy = "org-1"
	require.NoError(t, st.UpdateJoinRequest(ctx, rejected))

	// Registering again revives the same request back to pending with
	// the review fields cleared.
	res2, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.True(t, res2.PendingApproval)
	require.NotNil(t, res2.JoinRequest)
	assert.Equal(t, rejected.ID, res2.JoinRequest.ID)
	assert.Equal(t, core.JoinPending, res2.JoinRequest.Status)
	assert.Nil(t, res2.JoinRequest.ReviewedAt)
	assert.Empty(t, res2.JoinRequest.ReviewedBy)

	// The stored row is pending again, visible to the organizer queue.
	stored, err := st.GetJoinRequestByUserEvent(ctx, "usr-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, core.JoinPending, stored.Status)
}

func TestIssuePaidTicketAwardsPoints(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedEvent(t, st, "evt-1", 50000)

	ticket, err := eng.IssuePaidTicket(ctx, "usr-1", "evt-1", 50000, "ord-1", "pay_A1")
	require.NoError(t, err)
	assert.Equal(t, core.TicketPaid, ticket.Meta.Kind)
	assert.Equal(t, "pay_A1", ticket.Meta.PaymentID)
	assert.Equal(t, int64(50000), ticket.Meta.AmountMinorUnits)

	up, err := st.GetPoints(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), up.TotalPoints) // 50000/10000 + 2
	require.Len(t, up.Transactions, 1)
	assert.Equal(t, "paid registration for Event evt-1", up.Transactions[0].Reason)
}

func TestIssuePaidTicketIdempotentOnPaymentID(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedEvent(t, st, "evt-1", 50000)

	first, err := eng.IssuePaidTicket(ctx, "usr-1", "evt-1", 50000, "ord-1", "pay_A1")
	require.NoError(t, err)

	second, err := eng.IssuePaidTicket(ctx, "usr-1", "evt-1", 50000, "ord-1", "pay_A1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Replay must not double-award points.
	up, err := st.GetPoints(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), up.TotalPoints)
	assert.Len(t, up.Transactions, 1)
}

func TestGetTicketOwnership(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1")
	seedUser(t, st, "usr-2")
	seedEvent(t, st, "evt-1", 0)

	res, err := eng.RegisterFree(ctx, "usr-1", "evt-1")
	require.NoError(t, err)

	_, err = eng.GetTicket(ctx, res.Ticket.ID, "usr-1", core.RoleUser)
	assert.NoError(t, err)

	_, err = eng.GetTicket(ctx, res.Ticket.ID, "usr-2", core.RoleUser)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = eng.GetTicket(ctx, res.Ticket.ID, "usr-2", core.RoleAdmin)
	assert.NoError(t, err)

	_, err = eng.GetTicket(ctx, "missing", "usr-1", core.RoleUser)
	assert.True(t, apperrors.Is(err, apperrors.CodeTicketNotFound))
}
