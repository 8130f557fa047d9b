package core

import "errors"

// Storage-level sentinels shared by every store implementation.
// Services translate these into the structured error taxonomy.
var (
	ErrNotFound           = errors.New("core: not found")
	ErrAlreadyExists      = errors.New("core: already exists")
	ErrInsufficientPoints = errors.New("core: insufficient points")
)

// PointsAward describes an earn recorded in the same transaction as
// another write (paid issuance, first free validation).
type PointsAward struct {
	UserID string
	Points int64
	Reason string
}
