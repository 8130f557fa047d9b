package api

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/core"
	"github.com/appovenbackend/ticketing/internal/identity"
	"github.com/appovenbackend/ticketing/internal/payments"
)

const webhookSignatureHeader = "X-Webhook-Signature"

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
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
	order, err := s.payments.CreateOrder(r.Context(), actor.UserID, req.EventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.OrdersTotal.WithLabelValues(string(order.Status)).Inc()
	}
	writeJSON(w, r, http.StatusCreated, order)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	actor, err := identity.RequireActor(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in payments.VerifyInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ticket, err := s.payments.VerifyAndIssue(r.Context(), actor.UserID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(string(core.TicketPaid)).Inc()
		s.metrics.OrdersTotal.WithLabelValues(string(core.OrderSuccess)).Inc()
	}
	writeJSON(w, r, http.StatusOK, ticket)
}

// handleWebhook reads the raw body before any decoding: the signature
// covers the exact bytes received.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, r, apperrors.InvalidInput("unreadable webhook body").WithCause(err))
		return
	}
	err = s.payments.HandleWebhook(r.Context(), body, r.Header.Get(webhookSignatureHeader))
	if s.metrics != nil {
		result := "applied"
		if err != nil {
			result = "rejected"
		}
		s.metrics.WebhooksTotal.WithLabelValues("received", result).Inc()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "processed"})
}

func (s *Server) handleOrderAudit(w http.ResponseWriter, r *http.Request) {
	if _, err := identity.RequireAdmin(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	trail, err := s.payments.Audit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, trail)
}
