// Package qrtoken encodes the signed per-ticket token embedded in a
// ticket's QR code. The token proves bearer intent to a validator
// without revealing user identity: the validator only relays the
// string, and the validation engine re-derives identity from it.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("qrtoken: invalid token")
	ErrTokenExpired = errors.New("qrtoken: token expired")
)

// fallbackTTL bounds tokens for events with no recorded end time.
const fallbackTTL = 24 * time.Hour

// Claims binds a token to one ticket. Exp is the event's end expressed
// as an absolute UTC seconds epoch.
type Claims struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
	EventID  string `json:"event_id"`
	IssuedAt int64  `json:"iat"`
	Exp      int64  `json:"exp"`
}

// Codec signs and verifies ticket tokens with HMAC-SHA256 over the
// compact form base64url(claims) + "." + base64url(sig).
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// ExpiryEpoch computes the token expiry for a ticket issued at iat:
// the event end as a UTC epoch, or iat+24h when the end is absent.
// Verification recomputes this from the stored event end so a tampered
// exp claim cannot extend a token's life.
func ExpiryEpoch(iat time.Time, eventEnd *time.Time) int64 {
	if eventEnd == nil || eventEnd.IsZero() {
		return iat.Add(fallbackTTL).UTC().Unix()
	}
	return eventEnd.UTC().Unix()
}

// Encode signs a token for the given ticket.
func (c *Codec) Encode(ticketID, userID, eventID string, iat time.Time, eventEnd *time.Time) (string, error) {
	claims := Claims{
		TicketID: ticketID,
		UserID:   userID,
		EventID:  eventID,
		IssuedAt: iat.UTC().Unix(),
		Exp:      ExpiryEpoch(iat, eventEnd),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + c.sign(body), nil
}

// Decode verifies the signature and expiry and returns the claims.
// The signature check is constant-time.
func (c *Codec) Decode(token string, now time.Time) (*Claims, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(c.sign(body)), []byte(sig)) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TicketID == "" || claims.UserID == "" || claims.EventID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Exp <= now.UTC().Unix() {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func (c *Codec) sign(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
