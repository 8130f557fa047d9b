package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/middleware"
	"github.com/appovenbackend/ticketing/internal/users"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in users.RegisterInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.users.Login(r.Context(), in.Phone, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireActor(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.users.Logout(r.Context(), middleware.RawToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Get(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch users.ProfilePatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.UpdateProfile(r.Context(), actor.UserID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

func (s *Server) handleViewProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.connections.ViewProfile(r.Context(), actor.UserID, actor.Role, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, profile)
}
