package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/identity"
)

// Points

func (s *Server) handleMyPoints(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	up, err := s.points.Get(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, up)
}

func (s *Server) handleUserPoints(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	up, err := s.points.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, up)
}

func (s *Server) handlePointsTransactions(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.points.ListTransactions(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, txs)
}

func (s *Server) handleDeductPoints(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireAdmin(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Points int64  `json:"points"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := s.points.Deduct(r.Context(), req.UserID, req.Points, req.Reason, actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.PointsTotal.WithLabelValues(string(core.PointsDeducted)).Add(float64(req.Points))
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"balance": balance})
}

// Connections

func (s *Server) handleConnRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		TargetID string `json:"target_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	conn, err := s.connections.Request(r.Context(), actor.UserID, req.TargetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, conn)
}

func (s *Server) handleConnAccept(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	conn, err := s.connections.Accept(r.Context(), mux.Vars(r)["id"], actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, conn)
}

func (s *Server) handleConnDecline(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.connections.Decline(r.Context(), mux.Vars(r)["id"], actor.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "declined"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.connections.Disconnect(r.Context(), actor.UserID, mux.Vars(r)["userID"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "disconnected"})
}

// Join requests

func (s *Server) handleJoinRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := s.joinRequests.Request(r.Context(), actor.UserID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, req)
}

func (s *Server) handleListJoinRequests(w http.ResponseWriter, r *http.Request) {
	if _, err := requireOrganizer(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	status := core.JoinRequestStatus(r.URL.Query().Get("status"))
	list, err := s.joinRequests.List(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleGetJoinRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := s.joinRequests.Get(r.Context(), mux.Vars(r)["id"], actor.UserID, actor.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

func (s *Server) handleReviewJoinRequest(w http.ResponseWriter, r *http.Request) {
	actor, err := requireOrganizer(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.joinRequests.Review(r.Context(), mux.Vars(r)["id"], actor.UserID, req.Accept)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}
