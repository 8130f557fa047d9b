// Package api is the REST transport: routing, request decoding, actor
// extraction, and the uniform response envelope. All domain decisions
// live in the service packages.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/connections"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/events"
	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/joinrequests"
	"github.com/appovenbackend/ticketing/internal/metrics"
	"github.com/appovenbackend/ticketing/internal/middleware"
	"github.com/appovenbackend/ticketing/internal/payments"
	"github.com/appovenbackend/ticketing/internal/points"
	"github.com/appovenbackend/ticketing/internal/registration"
	"github.com/appovenbackend/ticketing/internal/users"
	"github.com/appovenbackend/ticketing/internal/validation"
)

// Server wires the service layer to HTTP.
type Server struct {
	users        *users.Service
	events       *events.Registry
	registration *registration.Engine
	validation   *validation.Engine
	payments     *payments.Orchestrator
	points       *points.Ledger
	connections  *connections.Graph
	joinRequests *joinrequests.Service
	tokens       *identity.TokenService
	limiter      *middleware.RateLimiter
	metrics      *metrics.Metrics

	httpSrv *http.Server
}

// Deps carries everything the server needs; all fields are required
// except Limiter and Metrics.
type Deps struct {
	Users        *users.Service
	Events       *events.Registry
	Registration *registration.Engine
	Validation   *validation.Engine
	Payments     *payments.Orchestrator
	Points       *points.Ledger
	Connections  *connections.Graph
	JoinRequests *joinrequests.Service
	Tokens       *identity.TokenService
	Limiter      *middleware.RateLimiter
	Metrics      *metrics.Metrics
}

func NewServer(d Deps) *Server {
	return &Server{
		users:        d.Users,
		events:       d.Events,
		registration: d.Registration,
		validation:   d.Validation,
		payments:     d.Payments,
		points:       d.Points,
		connections:  d.Connections,
		joinRequests: d.JoinRequests,
		tokens:       d.Tokens,
		limiter:      d.Limiter,
		metrics:      d.Metrics,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(observe(s.metrics))
	api.Use(middleware.Auth(s.tokens))
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}

	// Accounts
	api.HandleFunc("/users/register", s.handleRegister).Methods("POST")
	api.HandleFunc("/users/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/users/logout", s.handleLogout).Methods("POST")
	api.HandleFunc("/users/me", s.handleMe).Methods("GET")
	api.HandleFunc("/users/me", s.handleUpdateProfile).Methods("PATCH")
	api.HandleFunc("/users/{id}", s.handleViewProfile).Methods("GET")

	// Events
	api.HandleFunc("/events", s.handleListActive).Methods("GET")
	api.HandleFunc("/events", s.handleCreateEvent).Methods("POST")
	api.HandleFunc("/events/all", s.handleListAll).Methods("GET")
	api.HandleFunc("/events/recent", s.handleListRecent).Methods("GET")
	api.HandleFunc("/events/featured", s.handleGetFeatured).Methods("GET")
	api.HandleFunc("/events/featured/{slot}", s.handleSetFeatured).Methods("PUT")
	api.HandleFunc("/events/{id}", s.handleGetEvent).Methods("GET")
	api.HandleFunc("/events/{id}", s.handlePatchEvent).Methods("PATCH")
	api.HandleFunc("/events/{id}", s.handleDeleteEvent).Methods("DELETE")

	// Registration and tickets
	api.HandleFunc("/events/{id}/register", s.handleRegisterFree).Methods("POST")
	api.HandleFunc("/tickets", s.handleMyTickets).Methods("GET")
	api.HandleFunc("/tickets/{id}", s.handleGetTicket).Methods("GET")

	// Validation
	api.HandleFunc("/validate", s.handleValidate).Methods("POST")

	// Payments
	api.HandleFunc("/payments/order", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/payments/verify", s.handleVerifyPayment).Methods("POST")
	api.HandleFunc("/payments/webhook", s.handleWebhook).Methods("POST")
	api.HandleFunc("/payments/orders/{id}/audit", s.handleOrderAudit).Methods("GET")

	// Points
	api.HandleFunc("/points/me", s.handleMyPoints).Methods("GET")
	api.HandleFunc("/points/transactions", s.handlePointsTransactions).Methods("GET")
	api.HandleFunc("/points/deduct", s.handleDeductPoints).Methods("POST")
	api.HandleFunc("/points/{id}", s.handleUserPoints).Methods("GET")

	// Connections
	api.HandleFunc("/connections/request", s.handleConnRequest).Methods("POST")
	api.HandleFunc("/connections/{id}/accept", s.handleConnAccept).Methods("POST")
	api.HandleFunc("/connections/{id}/decline", s.handleConnDecline).Methods("POST")
	api.HandleFunc("/connections/{userID}", s.handleDisconnect).Methods("DELETE")

	// Join requests
	api.HandleFunc("/events/{id}/join-request", s.handleJoinRequest).Methods("POST")
	api.HandleFunc("/events/{id}/join-requests", s.handleListJoinRequests).Methods("GET")
	api.HandleFunc("/join-requests/{id}", s.handleGetJoinRequest).Methods("GET")
	api.HandleFunc("/join-requests/{id}/review", s.handleReviewJoinRequest).Methods("POST")

	return r
}

// Start serves until ctx is cancelled, then drains for up to 10s.
func (s *Server) Start(ctx context.Context, port string) error {
	s.httpSrv = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("http server draining")
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// requireOrganizer admits organizers and admins.
func requireOrganizer(ctx context.Context) (identity.Actor, error) {
	actor, err := identity.RequireActor(ctx)
	if err != nil {
		return identity.Actor{}, err
	}
	if actor.Role != core.RoleAdmin && actor.Role != core.RoleOrganizer {
		return identity.Actor{}, apperrors.Forbidden("organizer role required")
	}
	return actor, nil
}
