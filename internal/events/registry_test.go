package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/store/memstore"
)

var testClock = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	r := NewRegistry(st, cache.NewMemory())
	r.now = func() time.Time { return testClock }
	return r, st
}

func validInput() CreateInput {
	return CreateInput{
		Title:           "Morning 5K",
		Description:     "Easy pace run along the river",
		City:            "Pune",
		Venue:           "Riverside Track",
		StartAt:         testClock.Add(24 * time.Hour),
		EndAt:           testClock.Add(27 * time.Hour),
		PriceMinorUnits: 0,
	}
}

func TestCreateEvent(t *testing.T) {
	r, _ := newTestRegistry(t)

	e, err := r.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.True(t, e.IsActive)
	assert.True(t, e.RegistrationOpen)
	assert.Equal(t, testClock, e.CreatedAt)
}

func TestCreateValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	in := validInput()
	in.Title = ""
	_, err := r.Create(ctx, in)
	require.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
	assert.Contains(t, apperrors.As(err).FieldErrors, "title")

	in = validInput()
	in.EndAt = in.StartAt.Add(-time.Hour)
	_, err = r.Create(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "end_at")

	in = validInput()
	in.StartAt = testClock.Add(-3 * time.Hour)
	in.EndAt = testClock.Add(-time.Hour)
	_, err = r.Create(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "end_at")

	in = validInput()
	in.PriceMinorUnits = -1
	_, err = r.Create(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "price_minor_units")

	in = validInput()
	in.BannerURL = "ftp://example.com/banner.png"
	_, err = r.Create(ctx, in)
	assert.Contains(t, apperrors.As(err).FieldErrors, "banner_url")
}

func TestApplyPatchKeepsCreatedAt(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)

	title := "Evening 5K"
	price := int64(50000)
	patched, err := r.ApplyPatch(ctx, e.ID, Patch{Title: &title, PriceMinorUnits: &price})
	require.NoError(t, err)
	assert.Equal(t, "Evening 5K", patched.Title)
	assert.Equal(t, int64(50000), patched.PriceMinorUnits)
	assert.Equal(t, e.CreatedAt, patched.CreatedAt)

	// Untouched fields survive.
	assert.Equal(t, e.Venue, patched.Venue)
}

func TestApplyPatchValidatesMergedState(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)

	bad := e.StartAt.Add(-time.Hour)
	_, err = r.ApplyPatch(ctx, e.ID, Patch{EndAt: &bad})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestPatchUnknownEvent(t *testing.T) {
	r, _ := newTestRegistry(t)
	title := "x"
	_, err := r.ApplyPatch(context.Background(), "missing", Patch{Title: &title})
	assert.True(t, apperrors.Is(err, apperrors.CodeEventNotFound))
}

func TestListActiveUsesCache(t *testing.T) {
	st := memstore.New()
	c := cache.NewMemory()
	r := NewRegistry(st, c)
	r.now = func() time.Time { return testClock }
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)

	list, err := r.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)

	// The second read is served from the cache: deleting from the
	// store behind the registry's back does not change the answer.
	require.NoError(t, st.DeleteEventCascade(ctx, e.ID))
	list, err = r.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// A write invalidates, so the next read sees the real state.
	_, err = r.Create(ctx, validInput())
	require.NoError(t, err)
	list, err = r.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeleteInvalidatesActiveList(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)

	_, err = r.ListActive(ctx)
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, e.ID))
	list, err := r.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpireSweep(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	// Ended two hours ago: past the one-hour grace, sweepable.
	stale := &core.Event{
		ID: "evt-stale", Title: "Old", IsActive: true,
		StartAt: testClock.Add(-5 * time.Hour), EndAt: testClock.Add(-2 * time.Hour),
		CreatedAt: testClock.Add(-6 * time.Hour),
	}
	require.NoError(t, st.CreateEvent(ctx, stale))

	// Ended 30 minutes ago: still inside the grace window.
	recent := &core.Event{
		ID: "evt-recent", Title: "Recent", IsActive: true,
		StartAt: testClock.Add(-2 * time.Hour), EndAt: testClock.Add(-30 * time.Minute),
		CreatedAt: testClock.Add(-3 * time.Hour),
	}
	require.NoError(t, st.CreateEvent(ctx, recent))

	n, err := r.ExpireSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetEvent(ctx, "evt-stale")
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = st.GetEvent(ctx, "evt-recent")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestFeaturedSlots(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, r.SetFeaturedSlot(ctx, core.Featured1, e.ID))

	slots, err := r.GetFeaturedSlots(ctx)
	require.NoError(t, err)
	require.NotNil(t, slots[core.Featured1])
	assert.Equal(t, e.ID, slots[core.Featured1].ID)
	assert.Nil(t, slots[core.Featured2])

	list := FeaturedList(slots)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)

	// Clearing with an empty id empties the slot.
	require.NoError(t, r.SetFeaturedSlot(ctx, core.Featured1, ""))
	slots, err = r.GetFeaturedSlots(ctx)
	require.NoError(t, err)
	assert.Nil(t, slots[core.Featured1])
}

func TestFeaturedSlotRejectsUnknownEventAndSlot(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	err := r.SetFeaturedSlot(ctx, core.Featured1, "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeEventNotFound))

	err = r.SetFeaturedSlot(ctx, core.FeaturedSlot("featured_9"), "")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
}

func TestFeaturedDanglingClearedOnRead(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	e, err := r.Create(ctx, validInput())
	require.NoError(t, err)
	require.NoError(t, r.SetFeaturedSlot(ctx, core.Featured2, e.ID))

	// Delete behind the registry to leave a dangling reference.
	require.NoError(t, st.DeleteEventCascade(ctx, e.ID))
	// memstore's cascade already clears its featured map; re-point the
	// slot to simulate a stale reference.
	require.NoError(t, st.SetFeaturedSlot(ctx, core.Featured2, e.ID))

	slots, err := r.GetFeaturedSlots(ctx)
	require.NoError(t, err)
	assert.Nil(t, slots[core.Featured2])

	raw, err := st.GetFeaturedSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw[core.Featured2])
}
