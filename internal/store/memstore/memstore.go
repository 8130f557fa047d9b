// Package memstore is an in-memory implementation of every store
// interface the services declare. It backs the unit tests and the
// dev fallback in cmd/server when Postgres is not configured. All
// composite operations hold one lock, so the atomicity guarantees
// match the Postgres implementation.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/core"
)

type Store struct {
	mu sync.Mutex

	users        map[string]*core.User
	events       map[string]*core.Event
	tickets      map[string]*core.Ticket
	orders       map[string]*core.PaymentOrder
	payments     map[string]*core.Payment
	audit        []core.PaymentAuditEntry
	points       map[string]*core.UserPoints
	connections  map[string]*core.Connection
	joinRequests map[string]*core.EventJoinRequest
	receivedQR   []core.ReceivedQRToken
	featured     map[core.FeaturedSlot]string
}

func New() *Store {
	return &Store{
		users:        make(map[string]*core.User),
		events:       make(map[string]*core.Event),
		tickets:      make(map[string]*core.Ticket),
		orders:       make(map[string]*core.PaymentOrder),
		payments:     make(map[string]*core.Payment),
		points:       make(map[string]*core.UserPoints),
		connections:  make(map[string]*core.Connection),
		joinRequests: make(map[string]*core.EventJoinRequest),
		featured:     map[core.FeaturedSlot]string{core.Featured1: "", core.Featured2: ""},
	}
}

// ----- users -----

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return core.ErrAlreadyExists
	}
	for _, other := range s.users {
		if u.Phone != "" && other.Phone == u.Phone {
			return core.ErrAlreadyExists
		}
		if u.GoogleID != "" && other.GoogleID == u.GoogleID {
			return core.ErrAlreadyExists
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(id)
}

func (s *Store) getUserLocked(id string) (*core.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	cp.SubscribedEvents = append([]string(nil), u.SubscribedEvents...)
	return &cp, nil
}

func (s *Store) GetUserByPhone(_ context.Context, phone string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone && phone != "" {
			return s.getUserLocked(u.ID)
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return core.ErrNotFound
	}
	cur.Name = u.Name
	cur.Email = u.Email
	cur.IsPrivate = u.IsPrivate
	cur.Bio = u.Bio
	cur.PictureURL = u.PictureURL
	cur.Instagram = u.Instagram
	cur.Twitter = u.Twitter
	cur.LinkedIn = u.LinkedIn
	return nil
}

// ----- events -----

func (s *Store) CreateEvent(_ context.Context, e *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return core.ErrAlreadyExists
	}
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, e *core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[e.ID]
	if !ok {
		return core.ErrNotFound
	}
	created := cur.CreatedAt
	cp := *e
	cp.CreatedAt = created
	s.events[e.ID] = &cp
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) DeleteEventCascade(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.events, id)
	for tid, t := range s.tickets {
		if t.EventID == id {
			delete(s.tickets, tid)
		}
	}
	kept := s.receivedQR[:0]
	for _, r := range s.receivedQR {
		if r.EventID != id {
			kept = append(kept, r)
		}
	}
	s.receivedQR = kept
	for slot, eid := range s.featured {
		if eid == id {
			s.featured[slot] = ""
		}
	}
	return nil
}

func (s *Store) ListActiveEvents(_ context.Context, now time.Time) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, e := range s.events {
		if e.IsActive && e.EndAt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *Store) ListAllEvents(_ context.Context) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedEventsLocked(0), nil
}

func (s *Store) ListRecentEvents(_ context.Context, limit int) ([]core.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedEventsLocked(limit), nil
}

func (s *Store) sortedEventsLocked(limit int) []core.Event {
	var out []core.Event
	for _, e := range s.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) ExpireEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.events {
		if e.IsActive && !e.EndAt.After(cutoff) {
			e.IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *Store) SetFeaturedSlot(_ context.Context, slot core.FeaturedSlot, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot != core.Featured1 && slot != core.Featured2 {
		return core.ErrNotFound
	}
	s.featured[slot] = eventID
	return nil
}

func (s *Store) GetFeaturedSlots(_ context.Context) (map[core.FeaturedSlot]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.FeaturedSlot]string, len(s.featured))
	for k, v := range s.featured {
		out[k] = v
	}
	return out, nil
}

// ----- tickets -----

func (s *Store) GetTicket(_ context.Context, id string) (*core.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getTicketLocked(id)
}

func (s *Store) getTicketLocked(id string) (*core.Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return copyTicket(t), nil
}

func copyTicket(t *core.Ticket) *core.Ticket {
	cp := *t
	cp.ValidationHistory = append([]core.ScanEntry(nil), t.ValidationHistory...)
	if t.ValidatedAt != nil {
		v := *t.ValidatedAt
		cp.ValidatedAt = &v
	}
	return &cp
}

func (s *Store) GetTicketByPaymentID(_ context.Context, paymentID string) (*core.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.Meta.PaymentID == paymentID && paymentID != "" {
			return copyTicket(t), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) HasTicket(_ context.Context, userID, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.UserID == userID && t.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListUserTickets(_ context.Context, userID string) ([]core.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Ticket
	for _, t := range s.tickets {
		if t.UserID == userID {
			out = append(out, *copyTicket(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) CreateFreeTicket(_ context.Context, t *core.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.tickets {
		if other.UserID == t.UserID && other.EventID == t.EventID && other.Meta.Kind == core.TicketFree {
			return core.ErrAlreadyExists
		}
	}
	s.tickets[t.ID] = copyTicket(t)
	s.subscribeLocked(t.UserID, t.EventID)
	return nil
}

func (s *Store) CreatePaidTicket(_ context.Context, t *core.Ticket, award *core.PointsAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.tickets {
		if other.Meta.PaymentID != "" && other.Meta.PaymentID == t.Meta.PaymentID {
			return core.ErrAlreadyExists
		}
	}
	s.tickets[t.ID] = copyTicket(t)
	s.subscribeLocked(t.UserID, t.EventID)
	if award != nil {
		if err := s.applyPointsLocked(award.UserID, core.PointsTransaction{
			Type: core.PointsEarned, Points: award.Points, Reason: award.Reason,
			Timestamp: time.Now(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) subscribeLocked(userID, eventID string) {
	u, ok := s.users[userID]
	if !ok {
		return
	}
	for _, id := range u.SubscribedEvents {
		if id == eventID {
			return
		}
	}
	u.SubscribedEvents = append(u.SubscribedEvents, eventID)
}

func (s *Store) ValidateTicket(_ context.Context, ticketID string, entry core.ScanEntry, award *core.PointsAward) (*core.Ticket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return nil, false, core.ErrNotFound
	}
	if t.IsValidated {
		return copyTicket(t), false, nil
	}
	if award != nil {
		entry.PointsAwarded = true
		if err := s.applyPointsLocked(award.UserID, core.PointsTransaction{
			Type: core.PointsEarned, Points: award.Points, Reason: award.Reason,
			Timestamp: entry.Timestamp,
		}); err != nil {
			return nil, false, err
		}
	}
	t.IsValidated = true
	ts := entry.Timestamp
	t.ValidatedAt = &ts
	t.ValidationHistory = append(t.ValidationHistory, entry)
	return copyTicket(t), true, nil
}

func (s *Store) RecordReceivedQR(_ context.Context, rec *core.ReceivedQRToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivedQR = append(s.receivedQR, *rec)
	return nil
}

// ----- payments -----

func (s *Store) CreateOrder(_ context.Context, o *core.PaymentOrder, audit core.PaymentAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.orders {
		if other.GatewayOrderID == o.GatewayOrderID {
			return core.ErrAlreadyExists
		}
	}
	cp := *o
	s.orders[o.ID] = &cp
	s.appendAuditLocked(audit)
	return nil
}

func (s *Store) GetOrderByGatewayID(_ context.Context, gatewayOrderID string) (*core.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.GatewayOrderID == gatewayOrderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetPendingOrderByReceipt(_ context.Context, receipt string) (*core.PaymentOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var newest *core.PaymentOrder
	for _, o := range s.orders {
		if o.Receipt == receipt && o.Status == core.OrderPending && o.ExpiresAt.After(now) {
			if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
				newest = o
			}
		}
	}
	if newest == nil {
		return nil, core.ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *Store) TransitionOrder(_ context.Context, orderID string, from, to core.OrderStatus, audit core.PaymentAuditEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	audit.OldStatus = string(from)
	audit.NewStatus = string(to)
	s.appendAuditLocked(audit)
	return true, nil
}

func (s *Store) SavePayment(_ context.Context, p *core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.payments {
		if other.GatewayPaymentID == p.GatewayPaymentID {
			return nil
		}
	}
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *Store) AppendAudit(_ context.Context, audit core.PaymentAuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(audit)
	return nil
}

func (s *Store) appendAuditLocked(a core.PaymentAuditEntry) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, a)
}

func (s *Store) ListAudit(_ context.Context, orderID string) ([]core.PaymentAuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PaymentAuditEntry
	for _, a := range s.audit {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CancelExpiredOrders(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.orders {
		if o.Status == core.OrderPending && !o.ExpiresAt.After(now) {
			o.Status = core.OrderCancelled
			o.UpdatedAt = now
			s.appendAuditLocked(core.PaymentAuditEntry{
				OrderID:   o.ID,
				Action:    "order_expired",
				OldStatus: string(core.OrderPending),
				NewStatus: string(core.OrderCancelled),
				Actor:     "sweeper",
				CreatedAt: now,
			})
			n++
		}
	}
	return n, nil
}

// ----- points -----

func (s *Store) ApplyPointsTx(_ context.Context, userID string, ptx core.PointsTransaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ptx.Timestamp.IsZero() {
		ptx.Timestamp = time.Now()
	}
	if err := s.applyPointsLocked(userID, ptx); err != nil {
		return 0, err
	}
	return s.points[userID].TotalPoints, nil
}

func (s *Store) applyPointsLocked(userID string, ptx core.PointsTransaction) error {
	up, ok := s.points[userID]
	if !ok {
		up = &core.UserPoints{UserID: userID}
		s.points[userID] = up
	}
	if up.TotalPoints+ptx.Points < 0 {
		return core.ErrInsufficientPoints
	}
	up.TotalPoints += ptx.Points
	up.Transactions = append(up.Transactions, ptx)
	return nil
}

func (s *Store) GetPoints(_ context.Context, userID string) (*core.UserPoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	up, ok := s.points[userID]
	if !ok {
		return &core.UserPoints{UserID: userID}, nil
	}
	cp := *up
	cp.Transactions = append([]core.PointsTransaction(nil), up.Transactions...)
	return &cp, nil
}

func (s *Store) ListPointsTransactions(_ context.Context, userID string, limit int) ([]core.PointsTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []core.PointsTransaction
	for uid, up := range s.points {
		if userID != "" && uid != userID {
			continue
		}
		out = append(out, up.Transactions...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ----- connections -----

func (s *Store) CreateConnection(_ context.Context, c *core.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.connections {
		if samePair(other, c.RequesterID, c.TargetID) {
			return core.ErrAlreadyExists
		}
	}
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func samePair(c *core.Connection, a, b string) bool {
	return (c.RequesterID == a && c.TargetID == b) || (c.RequesterID == b && c.TargetID == a)
}

func (s *Store) GetConnection(_ context.Context, id string) (*core.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetConnectionBetween(_ context.Context, a, b string) (*core.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if samePair(c, a, b) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateConnectionStatus(_ context.Context, id string, status core.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return core.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (s *Store) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)
	return nil
}

func (s *Store) DeleteConnectionBetween(_ context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.connections {
		if samePair(c, a, b) {
			delete(s.connections, id)
		}
	}
	return nil
}

func (s *Store) CountAcceptedConnections(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.connections {
		if c.Status == core.ConnectionAccepted && (c.RequesterID == userID || c.TargetID == userID) {
			n++
		}
	}
	return n, nil
}

// ----- join requests -----

func (s *Store) CreateJoinRequest(_ context.Context, r *core.EventJoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.joinRequests {
		if other.UserID == r.UserID && other.EventID == r.EventID {
			return core.ErrAlreadyExists
		}
	}
	cp := *r
	s.joinRequests[r.ID] = &cp
	return nil
}

func (s *Store) GetJoinRequest(_ context.Context, id string) (*core.EventJoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.joinRequests[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetJoinRequestByUserEvent(_ context.Context, userID, eventID string) (*core.EventJoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.joinRequests {
		if r.UserID == userID && r.EventID == eventID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateJoinRequest(_ context.Context, r *core.EventJoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.joinRequests[r.ID]
	if !ok {
		return core.ErrNotFound
	}
	*cur = *r
	return nil
}

func (s *Store) ListJoinRequests(_ context.Context, eventID string, status core.JoinRequestStatus) ([]core.EventJoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.EventJoinRequest
	for _, r := range s.joinRequests {
		if r.EventID == eventID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}
