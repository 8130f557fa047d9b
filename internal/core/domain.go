package core

import "time"

// Role classifies what a user may do through the API.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// User is an account holder. Phone is unique when present (E.164);
// PasswordHash is set only for locally-registered accounts.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone,omitempty"`
	Email            string    `json:"email,omitempty"`
	PasswordHash     string    `json:"-"`
	GoogleID         string    `json:"-"`
	Role             Role      `json:"role"`
	IsPrivate        bool      `json:"is_private"`
	Bio              string    `json:"bio,omitempty"`
	PictureURL       string    `json:"picture_url,omitempty"`
	Instagram        string    `json:"instagram,omitempty"`
	Twitter          string    `json:"twitter,omitempty"`
	LinkedIn         string    `json:"linkedin,omitempty"`
	SubscribedEvents []string  `json:"subscribed_events"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsSubscribed reports whether the user already registered for the event.
func (u *User) IsSubscribed(eventID string) bool {
	for _, id := range u.SubscribedEvents {
		if id == eventID {
			return true
		}
	}
	return false
}

// Event is a bookable fitness event. Price is in minor units; 0 means free.
type Event struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	City             string    `json:"city"`
	Venue            string    `json:"venue"`
	StartAt          time.Time `json:"start_at"`
	EndAt            time.Time `json:"end_at"`
	PriceMinorUnits  int64     `json:"price_minor_units"`
	IsActive         bool      `json:"is_active"`
	RequiresApproval bool      `json:"requires_approval"`
	RegistrationOpen bool      `json:"registration_open"`
	BannerURL        string    `json:"banner_url,omitempty"`
	Latitude         float64   `json:"latitude,omitempty"`
	Longitude        float64   `json:"longitude,omitempty"`
	OrganizerName    string    `json:"organizer_name,omitempty"`
	OrganizerContact string    `json:"organizer_contact,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// expiryGrace keeps an event sweepable only an hour after it ends.
const expiryGrace = time.Hour

// IsExpired reports whether the event ended more than an hour before now.
func (e *Event) IsExpired(now time.Time) bool {
	return !e.EndAt.Add(expiryGrace).After(now)
}

// IsFree reports whether registration requires no payment.
func (e *Event) IsFree() bool { return e.PriceMinorUnits == 0 }

// FeaturedSlot names one of the two landing-surface positions.
type FeaturedSlot string

const (
	Featured1 FeaturedSlot = "featured_1"
	Featured2 FeaturedSlot = "featured_2"
)

// TicketKind distinguishes free from paid issuance.
type TicketKind string

const (
	TicketFree TicketKind = "free"
	TicketPaid TicketKind = "paid"
)

// TicketMeta records how a ticket came to exist.
type TicketMeta struct {
	Kind             TicketKind `json:"kind"`
	AmountMinorUnits int64      `json:"amount,omitempty"`
	OrderID          string     `json:"order_id,omitempty"`
	PaymentID        string     `json:"payment_id,omitempty"`
}

// ScanEntry is one validation-history record. Device and Operator are
// optional pass-through from the validator.
type ScanEntry struct {
	Timestamp     time.Time `json:"ts"`
	Device        string    `json:"device,omitempty"`
	Operator      string    `json:"operator,omitempty"`
	PointsAwarded bool      `json:"points_awarded,omitempty"`
}

// Ticket grants one user admission to one event. The ticket owns its
// QR token and validation history; no other aggregate mutates them.
type Ticket struct {
	ID                string      `json:"id"`
	EventID           string      `json:"event_id"`
	UserID            string      `json:"user_id"`
	QRToken           string      `json:"qr_token"`
	IssuedAt          time.Time   `json:"issued_at"`
	IsValidated       bool        `json:"is_validated"`
	ValidatedAt       *time.Time  `json:"validated_at,omitempty"`
	ValidationHistory []ScanEntry `json:"validation_history"`
	Meta              TicketMeta  `json:"meta"`
}

// OrderStatus is the lifecycle of a PaymentOrder. Success is terminal
// except via refunded.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderSuccess    OrderStatus = "success"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// PaymentOrder tracks one gateway order for one (user, event) pair.
type PaymentOrder struct {
	ID               string      `json:"id"`
	GatewayOrderID   string      `json:"gateway_order_id"`
	UserID           string      `json:"user_id"`
	EventID          string      `json:"event_id"`
	AmountMinorUnits int64       `json:"amount_minor_units"`
	Currency         string      `json:"currency"`
	Status           OrderStatus `json:"status"`
	Receipt          string      `json:"receipt"`
	ExpiresAt        time.Time   `json:"expires_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Payment records a gateway payment attempt against an order.
type Payment struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	GatewaySignature string    `json:"gateway_signature,omitempty"`
	AmountPaid       int64     `json:"amount_paid"`
	Status           string    `json:"status"`
	Method           string    `json:"method,omitempty"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// PaymentAuditEntry is one append-only row of the payment audit log.
type PaymentAuditEntry struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	Action    string    `json:"action"`
	OldStatus string    `json:"old_status,omitempty"`
	NewStatus string    `json:"new_status,omitempty"`
	Details   string    `json:"details,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PointsTxType marks the sign of a ledger transaction.
type PointsTxType string

const (
	PointsEarned   PointsTxType = "earned"
	PointsDeducted PointsTxType = "deducted"
)

// PointsTransaction is one signed delta in a user's ledger.
type PointsTransaction struct {
	Type      PointsTxType `json:"type"`
	Points    int64        `json:"points"`
	Reason    string       `json:"reason"`
	Actor     string       `json:"actor,omitempty"`
	Timestamp time.Time    `json:"ts"`
}

// UserPoints is the per-user balance plus its full transaction history.
// Invariant: TotalPoints equals the sum of transaction points.
type UserPoints struct {
	UserID       string              `json:"user_id"`
	TotalPoints  int64               `json:"total_points"`
	Transactions []PointsTransaction `json:"transactions"`
}

// ConnectionStatus is the lifecycle of a directed connection edge.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Connection is a directed edge; "connected" means an accepted edge
// exists in either direction.
type Connection struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	TargetID    string           `json:"target_id"`
	Status      ConnectionStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// JoinRequestStatus is the lifecycle of an approval-gated registration.
type JoinRequestStatus string

const (
	JoinPending  JoinRequestStatus = "pending"
	JoinAccepted JoinRequestStatus = "accepted"
	JoinRejected JoinRequestStatus = "rejected"
)

// EventJoinRequest is an intent to register for an approval-gated event.
type EventJoinRequest struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	EventID     string            `json:"event_id"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	ReviewedAt  *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy  string            `json:"reviewed_by,omitempty"`
}

// ReceivedQRToken is an audit-only record of a scan received from a
// validator. It is never authoritative.
type ReceivedQRToken struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	EventID    string    `json:"event_id"`
	ReceivedAt time.Time `json:"received_at"`
	Source     string    `json:"source,omitempty"`
}
