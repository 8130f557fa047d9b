package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/validation"
)

func (s *Server) handleRegisterFree(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.registration.RegisterFree(r.Context(), actor.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.metrics != nil && res.Ticket != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(string(core.TicketFree)).Inc()
	}
	status := http.StatusCreated
	if res.PendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, r, status, res)
}

func (s *Server) handleMyTickets(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	tickets, err := s.registration.ListUserTickets(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tickets)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.registration.GetTicket(r.Context(), mux.Vars(r)["id"], actor.UserID, actor.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if _, err := requireOrganizer(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	var in validation.ScanInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.validation.Validate(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ValidationsTotal.WithLabelValues(res.Status, res.Reason).Inc()
	}
	writeJSON(w, r, http.StatusOK, res)
}
