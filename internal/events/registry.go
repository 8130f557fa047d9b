// Package events owns the event lifecycle: CRUD, the derived
// active/expired state, the cached active list, and the two featured
// slots on the landing surface.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/core"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxPlaceLen       = 200
)

var bannerURLPattern = regexp.MustCompile(`^https://[^\s]+\.(png|jpe?g|webp)$`)

// Store is the persistence the registry needs.
type Store interface {
	CreateEvent(ctx context.Context, e *core.Event) error
	UpdateEvent(ctx context.Context, e *core.Event) error
	GetEvent(ctx context.Context, id string) (*core.Event, error)
	DeleteEventCascade(ctx context.Context, id string) error
	ListActiveEvents(ctx context.Context, now time.Time) ([]core.Event, error)
	ListAllEvents(ctx context.Context) ([]core.Event, error)
	ListRecentEvents(ctx context.Context, limit int) ([]core.Event, error)
	ExpireEvents(ctx context.Context, cutoff time.Time) (int64, error)
	SetFeaturedSlot(ctx context.Context, slot core.FeaturedSlot, eventID string) error
	GetFeaturedSlots(ctx context.Context) (map[core.FeaturedSlot]string, error)
}

type Registry struct {
	store Store
	cache cache.Cache
	now   func() time.Time
}

func NewRegistry(store Store, c cache.Cache) *Registry {
	return &Registry{store: store, cache: c, now: time.Now}
}

// CreateInput carries the caller-settable fields of a new event.
type CreateInput struct {
	Title            string
	Description      string
	City             string
	Venue            string
	StartAt          time.Time
	EndAt            time.Time
	PriceMinorUnits  int64
	RequiresApproval bool
	BannerURL        string
	Latitude         float64
	Longitude        float64
	OrganizerName    string
	OrganizerContact string
}

// Create validates the input and persists a new active event.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*core.Event, error) {
	if err := r.validate(in); err != nil {
		return nil, err
	}

	e := &core.Event{
		ID:               uuid.NewString(),
		Title:            in.Title,
		Description:      in.Description,
		City:             in.City,
		Venue:            in.Venue,
		StartAt:          in.StartAt,
		EndAt:            in.EndAt,
		PriceMinorUnits:  in.PriceMinorUnits,
		IsActive:         true,
		RequiresApproval: in.RequiresApproval,
		RegistrationOpen: true,
		BannerURL:        in.BannerURL,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		OrganizerName:    in.OrganizerName,
		OrganizerContact: in.OrganizerContact,
		CreatedAt:        r.now(),
	}
	if err := r.store.CreateEvent(ctx, e); err != nil {
		return nil, apperrors.Database(err)
	}
	r.invalidate(ctx)
	slog.Info("event created", "event_id", e.ID, "title", e.Title, "price", e.PriceMinorUnits)
	return e, nil
}

func (r *Registry) validate(in CreateInput) error {
	fields := map[string]string{}
	if in.Title == "" || len(in.Title) > maxTitleLen {
		fields["title"] = "required, at most 200 characters"
	}
	if len(in.Description) > maxDescriptionLen {
		fields["description"] = "at most 5000 characters"
	}
	if len(in.City) > maxPlaceLen {
		fields["city"] = "at most 200 characters"
	}
	if len(in.Venue) > maxPlaceLen {
		fields["venue"] = "at most 200 characters"
	}
	if !in.EndAt.After(in.StartAt) {
		fields["end_at"] = "must be after start_at"
	}
	if in.EndAt.Before(r.now()) {
		fields["end_at"] = "must be in the future"
	}
	if in.PriceMinorUnits < 0 {
		fields["price_minor_units"] = "must be non-negative"
	}
	if in.BannerURL != "" && !bannerURLPattern.MatchString(in.BannerURL) {
		fields["banner_url"] = "must be an https image URL"
	}
	if len(fields) > 0 {
		return apperrors.InvalidFields(fields)
	}
	return nil
}

// Patch carries a partial update; nil fields are retained. CreatedAt
// is immutable by construction.
type Patch struct {
	Title            *string
	Description      *string
	City             *string
	Venue            *string
	StartAt          *time.Time
	EndAt            *time.Time
	PriceMinorUnits  *int64
	IsActive         *bool
	RequiresApproval *bool
	RegistrationOpen *bool
	BannerURL        *string
	Latitude         *float64
	Longitude        *float64
	OrganizerName    *string
	OrganizerContact *string
}

// ApplyPatch merges the patch into an existing event and persists it.
func (r *Registry) ApplyPatch(ctx context.Context, eventID string, p Patch) (*core.Event, error) {
	e, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.City != nil {
		e.City = *p.City
	}
	if p.Venue != nil {
		e.Venue = *p.Venue
	}
	if p.StartAt != nil {
		e.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		e.EndAt = *p.EndAt
	}
	if p.PriceMinorUnits != nil {
		e.PriceMinorUnits = *p.PriceMinorUnits
	}
	if p.IsActive != nil {
		e.IsActive = *p.IsActive
	}
	if p.RequiresApproval != nil {
		e.RequiresApproval = *p.RequiresApproval
	}
	if p.RegistrationOpen != nil {
		e.RegistrationOpen = *p.RegistrationOpen
	}
	if p.BannerURL != nil {
		e.BannerURL = *p.BannerURL
	}
	if p.Latitude != nil {
		e.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		e.Longitude = *p.Longitude
	}
	if p.OrganizerName != nil {
		e.OrganizerName = *p.OrganizerName
	}
	if p.OrganizerContact != nil {
		e.OrganizerContact = *p.OrganizerContact
	}

	fields := map[string]string{}
	if !e.EndAt.After(e.StartAt) {
		fields["end_at"] = "must be after start_at"
	}
	if e.PriceMinorUnits < 0 {
		fields["price_minor_units"] = "must be non-negative"
	}
	if e.BannerURL != "" && !bannerURLPattern.MatchString(e.BannerURL) {
		fields["banner_url"] = "must be an https image URL"
	}
	if len(fields) > 0 {
		return nil, apperrors.InvalidFields(fields)
	}

	if err := r.store.UpdateEvent(ctx, e); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, apperrors.EventNotFound(eventID)
		}
		return nil, apperrors.Database(err)
	}
	r.invalidate(ctx)
	return e, nil
}

// Get loads one event.
func (r *Registry) Get(ctx context.Context, id string) (*core.Event, error) {
	e, err := r.store.GetEvent(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, apperrors.EventNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return e, nil
}

// Delete cascades to tickets, received-qr audit rows, and featured
// slots in one transaction.
func (r *Registry) Delete(ctx context.Context, id string) error {
	err := r.store.DeleteEventCascade(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return apperrors.EventNotFound(id)
	}
	if err != nil {
		return apperrors.Database(err)
	}
	r.invalidate(ctx)
	slog.Info("event deleted", "event_id", id)
	return nil
}

// ListActive returns active, unexpired events, served from the cache
// when fresh. A cache fault degrades to a direct read.
func (r *Registry) ListActive(ctx context.Context) ([]core.Event, error) {
	if data, err := r.cache.Get(ctx, cache.KeyActiveEvents); err == nil {
		var cached []core.Event
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		slog.Warn("active-list cache read failed", "error", err)
	}

	list, err := r.store.ListActiveEvents(ctx, r.now())
	if err != nil {
		return nil, apperrors.Database(err)
	}

	if data, err := json.Marshal(list); err == nil {
		if err := r.cache.Set(ctx, cache.KeyActiveEvents, data, cache.ActiveEventsTTL); err != nil {
			slog.Warn("active-list cache write failed", "error", err)
		}
	}
	return list, nil
}

// GetAll returns every event, newest first.
func (r *Registry) GetAll(ctx context.Context) ([]core.Event, error) {
	list, err := r.store.ListAllEvents(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return list, nil
}

// GetRecent returns the most recently created events.
func (r *Registry) GetRecent(ctx context.Context, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 10
	}
	list, err := r.store.ListRecentEvents(ctx, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return list, nil
}

// ExpireSweep deactivates events that ended more than an hour ago.
// Safe to run repeatedly.
func (r *Registry) ExpireSweep(ctx context.Context) (int64, error) {
	n, err := r.store.ExpireEvents(ctx, r.now().Add(-time.Hour))
	if err != nil {
		return 0, apperrors.Database(err)
	}
	if n > 0 {
		r.invalidate(ctx)
		slog.Info("expired events deactivated", "count", n)
	}
	return n, nil
}

// SetFeaturedSlot assigns an event to one of the two named slots, or
// clears it with an empty id.
func (r *Registry) SetFeaturedSlot(ctx context.Context, slot core.FeaturedSlot, eventID string) error {
	if slot != core.Featured1 && slot != core.Featured2 {
		return apperrors.InvalidInput("unknown featured slot").WithField("slot")
	}
	if eventID != "" {
		if _, err := r.Get(ctx, eventID); err != nil {
			return err
		}
	}
	if err := r.store.SetFeaturedSlot(ctx, slot, eventID); err != nil {
		return apperrors.Database(err)
	}
	if err := r.cache.Delete(ctx, cache.KeyFeaturedSlots); err != nil {
		slog.Warn("featured-slots cache invalidate failed", "error", err)
	}
	return nil
}

// GetFeaturedSlots resolves both slots to events. A slot referencing a
// missing event is cleared on read.
func (r *Registry) GetFeaturedSlots(ctx context.Context) (map[core.FeaturedSlot]*core.Event, error) {
	slots, err := r.store.GetFeaturedSlots(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	out := map[core.FeaturedSlot]*core.Event{core.Featured1: nil, core.Featured2: nil}
	for slot, id := range slots {
		if id == "" {
			continue
		}
		e, err := r.store.GetEvent(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			if clearErr := r.store.SetFeaturedSlot(ctx, slot, ""); clearErr != nil {
				slog.Warn("dangling featured slot not cleared", "slot", slot, "error", clearErr)
			}
			continue
		}
		if err != nil {
			return nil, apperrors.Database(err)
		}
		out[slot] = e
	}
	return out, nil
}

// FeaturedList projects the named slots to the legacy 0-2 element list
// read shape.
func FeaturedList(slots map[core.FeaturedSlot]*core.Event) []core.Event {
	out := make([]core.Event, 0, 2)
	for _, slot := range []core.FeaturedSlot{core.Featured1, core.Featured2} {
		if e := slots[slot]; e != nil {
			out = append(out, *e)
		}
	}
	return out
}

func (r *Registry) invalidate(ctx context.Context) {
	if err := r.cache.Delete(ctx, cache.KeyActiveEvents); err != nil {
		slog.Warn("active-list cache invalidate failed", "error", err)
	}
}
