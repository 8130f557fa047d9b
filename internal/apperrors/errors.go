// Package apperrors defines the structured error model shared by every
// core operation. The transport layer serializes these with stable code
// strings; services never return bare errors for expected failures.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the top-level error category.
type Type string

const (
	TypeValidation     Type = "validation"
	TypeAuthentication Type = "authentication"
	TypeAuthorization  Type = "authorization"
	TypeBusinessLogic  Type = "business_logic"
	TypePayment        Type = "payment"
	TypeRateLimit      Type = "rate_limit"
	TypeDatabase       Type = "database"
	TypeSystem         Type = "system"
)

// Severity grades an error for logging and alerting. Critical errors
// (signature mismatch, DB unavailability) are tagged for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Error is the structured application error carried through every
// operation. Code strings are stable API surface.
type Error struct {
	Type        Type              `json:"type"`
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	UserMessage string            `json:"userMessage"`
	Severity    Severity          `json:"severity"`
	Field       string            `json:"field,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Type, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logs without changing the
// serialized shape.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// WithField marks the input field that failed validation.
func (e *Error) WithField(field string) *Error {
	c := *e
	c.Field = field
	return &c
}

// HTTPStatus maps the taxonomy to its HTTP analog.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeAuthorization:
		return http.StatusForbidden
	case TypeBusinessLogic:
		switch e.Code {
		case CodeEventNotFound, CodeUserNotFound, CodeTicketNotFound, CodeRequestNotFound:
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case TypePayment:
		if e.Code == CodeGatewayUnavailable {
			return http.StatusBadGateway
		}
		if e.Code == CodeOrderNotFound {
			return http.StatusNotFound
		}
		return http.StatusPaymentRequired
	case TypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Stable code strings.
const (
	CodeUnauthenticated          = "UNAUTHENTICATED"
	CodeTokenMalformed           = "TOKEN_MALFORMED"
	CodeTokenExpired             = "TOKEN_EXPIRED"
	CodeTokenRevoked             = "TOKEN_REVOKED"
	CodeTokenWrongType           = "TOKEN_WRONG_TYPE"
	CodeForbidden                = "FORBIDDEN"
	CodeInvalidInput             = "INVALID_INPUT"
	CodeUserNotFound             = "USER_NOT_FOUND"
	CodeEventNotFound            = "EVENT_NOT_FOUND"
	CodeEventExpired             = "EVENT_EXPIRED"
	CodeEventInactive            = "EVENT_INACTIVE"
	CodeEventClosed              = "EVENT_CLOSED"
	CodeDuplicateRegistration    = "DUPLICATE_REGISTRATION"
	CodePaidEventRequiresPayment = "PAID_EVENT_REQUIRES_PAYMENT"
	CodeFreeEventRejected        = "FREE_EVENT_REJECTED"
	CodeTicketNotFound           = "TICKET_NOT_FOUND"
	CodeRequestNotFound          = "REQUEST_NOT_FOUND"
	CodeInsufficientPoints       = "INSUFFICIENT_POINTS"
	CodeAlreadyConnected         = "ALREADY_CONNECTED"
	CodeAlreadyPending           = "ALREADY_PENDING"
	CodeInvalidSignature         = "INVALID_SIGNATURE"
	CodeInvalidWebhookSignature  = "INVALID_WEBHOOK_SIGNATURE"
	CodeOrderNotFound            = "ORDER_NOT_FOUND"
	CodeGatewayUnavailable       = "GATEWAY_UNAVAILABLE"
	CodeRateLimited              = "RATE_LIMITED"
	CodeDatabaseUnavailable      = "DATABASE_UNAVAILABLE"
	CodeInternal                 = "INTERNAL"
)

func newErr(t Type, code, msg, userMsg string, sev Severity) *Error {
	return &Error{Type: t, Code: code, Message: msg, UserMessage: userMsg, Severity: sev}
}

// Constructors for the kinds named in the component design. Keeping
// them here gives every call site the same code and user message.

func Unauthenticated() *Error {
	return newErr(TypeAuthentication, CodeUnauthenticated, "request has no authenticated caller", "Please sign in.", SeverityInfo)
}

func TokenMalformed() *Error {
	return newErr(TypeAuthentication, CodeTokenMalformed, "token is malformed or signature-invalid", "Please sign in again.", SeverityWarning)
}

func TokenExpired() *Error {
	return newErr(TypeAuthentication, CodeTokenExpired, "token has expired", "Your session expired, please sign in again.", SeverityInfo)
}

func TokenRevoked() *Error {
	return newErr(TypeAuthentication, CodeTokenRevoked, "token has been revoked", "Your session ended, please sign in again.", SeverityInfo)
}

func TokenWrongType() *Error {
	return newErr(TypeAuthentication, CodeTokenWrongType, "token is not an access token", "Please sign in again.", SeverityWarning)
}

func Forbidden(msg string) *Error {
	return newErr(TypeAuthorization, CodeForbidden, msg, "You are not allowed to do that.", SeverityWarning)
}

func InvalidInput(msg string) *Error {
	return newErr(TypeValidation, CodeInvalidInput, msg, "Some fields are invalid.", SeverityInfo)
}

func InvalidFields(fieldErrors map[string]string) *Error {
	e := newErr(TypeValidation, CodeInvalidInput, "one or more fields are invalid", "Some fields are invalid.", SeverityInfo)
	e.FieldErrors = fieldErrors
	return e
}

func UserNotFound(id string) *Error {
	return newErr(TypeBusinessLogic, CodeUserNotFound, "user not found: "+id, "User not found.", SeverityInfo)
}

func EventNotFound(id string) *Error {
	return newErr(TypeBusinessLogic, CodeEventNotFound, "event not found: "+id, "Event not found.", SeverityInfo)
}

func EventExpired(id string) *Error {
	return newErr(TypeBusinessLogic, CodeEventExpired, "event has ended: "+id, "This event has already ended.", SeverityInfo)
}

func EventInactive(id string) *Error {
	return newErr(TypeBusinessLogic, CodeEventInactive, "event is not active: "+id, "This event is not open right now.", SeverityInfo)
}

func EventClosed(id string) *Error {
	return newErr(TypeBusinessLogic, CodeEventClosed, "event registration is closed: "+id, "Registration for this event is closed.", SeverityInfo)
}

func DuplicateRegistration() *Error {
	return newErr(TypeBusinessLogic, CodeDuplicateRegistration, "user already registered for this event", "You are already registered for this event.", SeverityInfo)
}

func PaidEventRequiresPayment() *Error {
	return newErr(TypeBusinessLogic, CodePaidEventRequiresPayment, "paid event requires a payment flow", "This event requires payment.", SeverityInfo)
}

func FreeEventRejected() *Error {
	return newErr(TypeBusinessLogic, CodeFreeEventRejected, "payment verification attempted for a free event", "This event is free, no payment needed.", SeverityWarning)
}

func TicketNotFound(id string) *Error {
	return newErr(TypeBusinessLogic, CodeTicketNotFound, "ticket not found: "+id, "Ticket not found.", SeverityInfo)
}

func RequestNotFound(id string) *Error {
	return newErr(TypeBusinessLogic, CodeRequestNotFound, "join request not found: "+id, "Request not found.", SeverityInfo)
}

func InsufficientPoints() *Error {
	return newErr(TypeBusinessLogic, CodeInsufficientPoints, "deduction would make balance negative", "Not enough points.", SeverityInfo)
}

func AlreadyConnected() *Error {
	return newErr(TypeBusinessLogic, CodeAlreadyConnected, "an accepted connection already exists", "You are already connected.", SeverityInfo)
}

func AlreadyPending() *Error {
	return newErr(TypeBusinessLogic, CodeAlreadyPending, "a pending request already exists", "Your request is already pending.", SeverityInfo)
}

func InvalidSignature() *Error {
	return newErr(TypePayment, CodeInvalidSignature, "payment signature verification failed", "Payment could not be verified.", SeverityCritical)
}

func InvalidWebhookSignature() *Error {
	return newErr(TypePayment, CodeInvalidWebhookSignature, "webhook signature verification failed", "Webhook rejected.", SeverityCritical)
}

func OrderNotFound(id string) *Error {
	return newErr(TypePayment, CodeOrderNotFound, "payment order not found: "+id, "Order not found.", SeverityWarning)
}

func GatewayUnavailable(err error) *Error {
	return newErr(TypePayment, CodeGatewayUnavailable, "payment gateway unreachable", "Payment service is temporarily unavailable.", SeverityError).WithCause(err)
}

func RateLimited(retryAfterSeconds int) *Error {
	e := newErr(TypeRateLimit, CodeRateLimited, "rate limit exceeded", "Too many requests, slow down.", SeverityInfo)
	e.Details = map[string]string{"retry_after": fmt.Sprintf("%ds", retryAfterSeconds)}
	return e
}

func Database(err error) *Error {
	return newErr(TypeDatabase, CodeDatabaseUnavailable, "database operation failed", "Something went wrong, please retry.", SeverityCritical).WithCause(err)
}

func Internal(err error) *Error {
	return newErr(TypeSystem, CodeInternal, "internal error", "Something went wrong.", SeverityError).WithCause(err)
}

// As extracts an *Error from err, or wraps err as an internal error so
// callers always have a serializable shape.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// Is reports whether err carries the given stable code.
func Is(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
