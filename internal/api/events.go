package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/events"
	"github.com/appovenbackend/ticketing/internal/identity"
)

type createEventRequest struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	City             string    `json:"city"`
	Venue            string    `json:"venue"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	PriceMinorUnits  int64     `json:"price_minor_units"`
	RequiresApproval bool      `json:"requires_approval"`
	BannerURL        string    `json:"banner_url"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	OrganizerName    string    `json:"organizer_name"`
	OrganizerContact string    `json:"organizer_contact"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := requireOrganizer(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	var req createEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.events.Create(r.Context(), events.CreateInput{
		Title:            req.Title,
		Description:      req.Description,
		City:             req.City,
		Venue:            req.Venue,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
		PriceMinorUnits:  req.PriceMinorUnits,
		RequiresApproval: req.RequiresApproval,
		BannerURL:        req.BannerURL,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		OrganizerName:    req.OrganizerName,
		OrganizerContact: req.OrganizerContact,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

type patchEventRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	City             *string    `json:"city"`
	Venue            *string    `json:"venue"`
	StartAt          *time.Time `json:"start_at"`
	EndAt            *time.Time `json:"end_at"`
	PriceMinorUnits  *int64     `json:"price_minor_units"`
	IsActive         *bool      `json:"is_active"`
	RequiresApproval *bool      `json:"requires_approval"`
	RegistrationOpen *bool      `json:"registration_open"`
	BannerURL        *string    `json:"banner_url"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	OrganizerName    *string    `json:"organizer_name"`
	OrganizerContact *string    `json:"organizer_contact"`
}

func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := requireOrganizer(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	var req patchEventRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.events.ApplyPatch(r.Context(), mux.Vars(r)["id"], events.Patch{
		Title:            req.Title,
		Description:      req.Description,
		City:             req.City,
		Venue:            req.Venue,
		StartAt:          req.StartAt,
		EndAt:            req.EndAt,
		PriceMinorUnits:  req.PriceMinorUnits,
		IsActive:         req.IsActive,
		RequiresApproval: req.RequiresApproval,
		RegistrationOpen: req.RegistrationOpen,
		BannerURL:        req.BannerURL,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		OrganizerName:    req.OrganizerName,
		OrganizerContact: req.OrganizerContact,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.events.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.events.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	list, err := s.events.ListActive(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.events.GetAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleListRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.events.GetRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleGetFeatured(w http.ResponseWriter, r *http.Request) {
	slots, err := s.events.GetFeaturedSlots(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"slots": slots,
		"list":  events.FeaturedList(slots),
	})
}

func (s *Server) handleSetFeatured(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		EventID string `json:"event_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	slot := core.FeaturedSlot(mux.Vars(r)["slot"])
	if err := s.events.SetFeaturedSlot(r.Context(), slot, req.EventID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"slot": string(slot), "event_id": req.EventID})
}
