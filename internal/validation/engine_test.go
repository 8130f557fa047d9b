package validation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/points"
	"github.com/appovenbackend/ticketing/internal/qrtoken"
	"github.com/appovenbackend/ticketing/internal/registration"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	engine *Engine
	store  *memstore.Store
	ticket *core.Ticket
	event  *core.Event
}

// issueFreeTicket writes a free ticket carrying a genuinely signed
// token, pinned to the test clock.
func issueFreeTicket(t *testing.T, st *memstore.Store, codec *qrtoken.Codec, userID string, event *core.Event) *core.Ticket {
	t.Helper()
	tk := &core.Ticket{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		UserID:            userID,
		IssuedAt:          testClock,
		ValidationHistory: []core.ScanEntry{},
		Meta:              core.TicketMeta{Kind: core.TicketFree},
	}
	token, err := codec.Encode(tk.ID, userID, event.ID, testClock, &event.EndAt)
	require.NoError(t, err)
	tk.QRToken = token
	require.NoError(t, st.CreateFreeTicket(context.Background(), tk))
	return tk
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	codec := qrtoken.NewCodec("qr-test-secret")
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, &core.User{
		ID: "usr-1", Name: "Runner", Role: core.RoleUser, CreatedAt: testClock,
	}))
	event := &core.Event{
		ID: "evt-1", Title: "Morning 5K", IsActive: true, RegistrationOpen: true,
		StartAt: testClock.Add(time.Hour), EndAt: testClock.Add(4 * time.Hour),
		CreatedAt: testClock,
	}
	require.NoError(t, st.CreateEvent(ctx, event))

	ticket := issueFreeTicket(t, st, codec, "usr-1", event)

	eng := NewEngine(st, codec)
	eng.now = func() time.Time { return testClock.Add(2 * time.Hour) }

	return &fixture{engine: eng, store: st, ticket: ticket, event: event}
}

func TestValidateFirstScan(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Validate(context.Background(), ScanInput{
		Token: f.ticket.QRToken, EventID: "evt-1", Device: "gate-1", Operator: "op-7",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
	assert.Empty(t, res.Reason)
	assert.True(t, res.PointsAwarded)
	require.NotNil(t, res.Ticket)
	assert.True(t, res.Ticket.IsValidated)
	require.Len(t, res.History, 1)
	assert.Equal(t, "gate-1", res.History[0].Device)
	assert.True(t, res.History[0].PointsAwarded)
	require.NotNil(t, res.User)
	assert.Equal(t, "usr-1", res.User.ID)

	// Free-ticket validation awards exactly 2 points.
	up, err := f.store.GetPoints(context.Background(), "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(points.FreeValidationPoints), up.TotalPoints)
	assert.Equal(t, "free event validation for Morning 5K", up.Transactions[0].Reason)
}

func TestValidateSecondScanAlreadyScanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := ScanInput{Token: f.ticket.QRToken, EventID: "evt-1"}

	_, err := f.engine.Validate(ctx, in)
	require.NoError(t, err)

	res, err := f.engine.Validate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyScanned, res.Status)
	require.NotNil(t, res.Ticket)
	assert.True(t, res.Ticket.IsValidated)

	// No second award.
	up, err := f.store.GetPoints(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(points.FreeValidationPoints), up.TotalPoints)
	assert.Len(t, up.Transactions, 1)
}

func TestValidateConcurrentScansSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := ScanInput{Token: f.ticket.QRToken, EventID: "evt-1"}

	const scanners = 16
	results := make([]*Result, scanners)
	errs := make([]error, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Validate(ctx, in)
		}(i)
	}
	wg.Wait()

	// Exactly one gate wins; everyone else sees already_scanned.
	valid, scanned, awarded := 0, 0, 0
	for i := 0; i < scanners; i++ {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case StatusValid:
			valid++
		case StatusAlreadyScanned:
			scanned++
		}
		if results[i].PointsAwarded {
			awarded++
		}
	}
	assert.Equal(t, 1, valid)
	assert.Equal(t, scanners-1, scanned)
	assert.Equal(t, 1, awarded)

	// A single award, no matter how many scanners raced.
	up, err := f.store.GetPoints(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, int64(points.FreeValidationPoints), up.TotalPoints)
	assert.Len(t, up.Transactions, 1)
}

func TestValidateTamperedToken(t *testing.T) {
	f := newFixture(t)

	body, sig, _ := strings.Cut(f.ticket.QRToken, ".")
	tampered := body + "x." + sig

	res, err := f.engine.Validate(context.Background(), ScanInput{Token: tampered, EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonInvalidToken, res.Reason)
	assert.Nil(t, res.Ticket)
}

func TestValidateEventMismatch(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Validate(context.Background(), ScanInput{
		Token: f.ticket.QRToken, EventID: "evt-other",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonEventMismatch, res.Reason)
}

func TestValidateRequiresEventID(t *testing.T) {
	f := newFixture(t)

	// A scan without event context cannot bind the token to a gate.
	_, err := f.engine.Validate(context.Background(), ScanInput{Token: f.ticket.QRToken})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	// The ticket is untouched.
	stored, err := f.store.GetTicket(context.Background(), f.ticket.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsValidated)
}

func TestValidateTicketDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Cascade delete removes the ticket but the event id claim decodes;
	// recreate the event so only the ticket is missing.
	require.NoError(t, f.store.DeleteEventCascade(ctx, "evt-1"))
	require.NoError(t, f.store.CreateEvent(ctx, f.event))

	res, err := f.engine.Validate(ctx, ScanInput{Token: f.ticket.QRToken, EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonTicketNotFound, res.Reason)
}

func TestValidateExpiredEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Event rescheduled to have ended 90 minutes before the scan; the
	// token claim still carries the original end, but the engine trusts
	// the stored event.
	f.event.EndAt = testClock.Add(30 * time.Minute)
	require.NoError(t, f.store.UpdateEvent(ctx, f.event))

	res, err := f.engine.Validate(ctx, ScanInput{Token: f.ticket.QRToken, EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonEventExpired, res.Reason)
}

func TestValidateExpiryRecomputedFromStoredEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Event rescheduled to end 30 minutes before the scan, still inside
	// the one-hour grace. The token's own exp is hours away, but the
	// recomputed expiry from the stored end rejects it.
	f.event.EndAt = testClock.Add(90 * time.Minute)
	require.NoError(t, f.store.UpdateEvent(ctx, f.event))

	res, err := f.engine.Validate(ctx, ScanInput{Token: f.ticket.QRToken, EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonTokenExpired, res.Reason)
}

func TestValidateTokenExpiredAtEventEnd(t *testing.T) {
	f := newFixture(t)
	// Past the event end the signed token itself has expired.
	f.engine.now = func() time.Time { return f.event.EndAt.Add(30 * time.Minute) }

	res, err := f.engine.Validate(context.Background(), ScanInput{
		Token: f.ticket.QRToken, EventID: "evt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Equal(t, ReasonTokenExpired, res.Reason)
}

func TestPaidTicketValidationNoAward(t *testing.T) {
	st := memstore.New()
	codec := qrtoken.NewCodec("qr-test-secret")
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, &core.User{ID: "usr-1", Name: "Runner", CreatedAt: testClock}))
	event := &core.Event{
		ID: "evt-1", Title: "Paid Race", IsActive: true, RegistrationOpen: true,
		StartAt: testClock.Add(time.Hour), EndAt: testClock.Add(4 * time.Hour),
		PriceMinorUnits: 50000, CreatedAt: testClock,
	}
	require.NoError(t, st.CreateEvent(ctx, event))

	reg := registration.NewEngine(st, codec)
	ticket, err := reg.IssuePaidTicket(ctx, "usr-1", "evt-1", 50000, "ord-1", "pay_A1")
	require.NoError(t, err)

	before, err := st.GetPoints(ctx, "usr-1")
	require.NoError(t, err)

	eng := NewEngine(st, codec)
	eng.now = func() time.Time { return testClock.Add(2 * time.Hour) }
	res, err := eng.Validate(ctx, ScanInput{Token: ticket.QRToken, EventID: "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusValid, res.Status)
	assert.False(t, res.PointsAwarded)

	// Balance unchanged: the paid award happened at issuance.
	after, err := st.GetPoints(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, before.TotalPoints, after.TotalPoints)
}
