package connections

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestGraph(t *testing.T) (*Graph, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	g := NewGraph(st)
	g.now = func() time.Time { return testClock }
	return g, st
}

func seedUser(t *testing.T, st *memstore.Store, id string, private bool) *core.User {
	t.Helper()
	u := &core.User{
		ID: id, Name: "User " + id, Phone: "+9198765" + id, Email: id + "@example.com",
		Bio: "bio of " + id, Instagram: "@" + id, IsPrivate: private,
		SubscribedEvents: []string{"evt-1"}, Role: core.RoleUser, CreatedAt: testClock,
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func TestRequestPublicTargetAutoAccepts(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", false)

	conn, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	assert.Equal(t, core.ConnectionAccepted, conn.Status)

	connected, err := g.IsConnected(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestRequestPrivateTargetStaysPending(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)

	conn, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	assert.Equal(t, core.ConnectionPending, conn.Status)

	connected, err := g.IsConnected(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestRequestRejectsSelfAndDuplicates(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)
	seedUser(t, st, "usr-3", false)

	_, err := g.Request(ctx, "usr-1", "usr-1")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = g.Request(ctx, "usr-1", "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeUserNotFound))

	_, err = g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	_, err = g.Request(ctx, "usr-1", "usr-2")
	assert.True(t, apperrors.Is(err, apperrors.CodeAlreadyPending))

	_, err = g.Request(ctx, "usr-1", "usr-3")
	require.NoError(t, err)
	_, err = g.Request(ctx, "usr-1", "usr-3")
	assert.True(t, apperrors.Is(err, apperrors.CodeAlreadyConnected))
}

func TestAcceptOnlyByTarget(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)

	conn, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)

	_, err = g.Accept(ctx, conn.ID, "usr-1")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	accepted, err := g.Accept(ctx, conn.ID, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, core.ConnectionAccepted, accepted.Status)

	// A second accept is no longer pending.
	_, err = g.Accept(ctx, conn.ID, "usr-2")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))

	_, err = g.Accept(ctx, "missing", "usr-2")
	assert.True(t, apperrors.Is(err, apperrors.CodeRequestNotFound))
}

func TestDeclineRemovesRequest(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)

	conn, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	require.NoError(t, g.Decline(ctx, conn.ID, "usr-2"))

	// The requester may try again after a decline.
	_, err = g.Request(ctx, "usr-1", "usr-2")
	assert.NoError(t, err)
}

func TestDisconnect(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", false)

	_, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)

	// Either side may sever the edge.
	require.NoError(t, g.Disconnect(ctx, "usr-2", "usr-1"))
	connected, err := g.IsConnected(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	assert.False(t, connected)

	// Removing an absent edge is a no-op.
	assert.NoError(t, g.Disconnect(ctx, "usr-2", "usr-1"))
}

func TestViewProfilePrivateHiddenFromStrangers(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)

	p, err := g.ViewProfile(ctx, "usr-1", core.RoleUser, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, "usr-2", p.ID)
	assert.Equal(t, "User usr-2", p.Name)
	assert.True(t, p.IsPrivate)
	assert.Empty(t, p.Bio)
	assert.Empty(t, p.Instagram)
	assert.Empty(t, p.SubscribedEvents)
}

func TestViewProfileFullForSelfAdminAndConnections(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)
	seedUser(t, st, "usr-2", true)

	p, err := g.ViewProfile(ctx, "usr-2", core.RoleUser, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, "bio of usr-2", p.Bio)

	p, err = g.ViewProfile(ctx, "usr-9", core.RoleAdmin, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, "bio of usr-2", p.Bio)

	conn, err := g.Request(ctx, "usr-1", "usr-2")
	require.NoError(t, err)
	_, err = g.Accept(ctx, conn.ID, "usr-2")
	require.NoError(t, err)

	p, err = g.ViewProfile(ctx, "usr-1", core.RoleUser, "usr-2")
	require.NoError(t, err)
	assert.Equal(t, "bio of usr-2", p.Bio)
	assert.Equal(t, []string{"evt-1"}, p.SubscribedEvents)
	assert.Equal(t, 1, p.ConnectionsCount)
}

func TestViewProfileNeverExposesContactDetails(t *testing.T) {
	g, st := newTestGraph(t)
	ctx := context.Background()
	seedUser(t, st, "usr-1", false)

	// Even the full self view carries no phone or email fields.
	p, err := g.ViewProfile(ctx, "usr-1", core.RoleUser, "usr-1")
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "+9198765usr-1")
	assert.NotContains(t, string(raw), "usr-1@example.com")

	_, err = g.ViewProfile(ctx, "usr-1", core.RoleUser, "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeUserNotFound))
}
