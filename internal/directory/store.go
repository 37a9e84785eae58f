// Package directory maps external (channel, vendor id) pairs to contact-center
// chat sessions.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dayuer/chatgw/internal/channels"
)

var (
	// ErrNotFound means no live participant matches. It is a normal outcome.
	ErrNotFound = errors.New("participant not found")

	// ErrConflict means a live participant already holds the (vendor id, channel) pair.
	ErrConflict = errors.New("participant already exists")
)

// Participant binds one external user on one channel to one chat session.
type Participant struct {
	ContactID        string
	VendorID         string
	Channel          channels.Channel
	ParticipantToken string
	ConnectionToken  string
	ExpiresAt        time.Time
}

// Expired reports whether the record's TTL has passed at now.
func (p Participant) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// ConflictError is returned by CreateIfAbsent when another record won.
type ConflictError struct {
	WinnerID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("participant already exists: %s", e.WinnerID)
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Store persists participants. Implementations must make CreateIfAbsent
// atomic across processes sharing the backend.
type Store interface {
	Get(ctx context.Context, contactID string) (Participant, error)
	LookupByVendor(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error)
	CreateIfAbsent(ctx context.Context, p Participant) error
	SetConnectionToken(ctx context.Context, contactID, token string) error
	Extend(ctx context.Context, contactID string, expiresAt time.Time) error
	Delete(ctx context.Context, contactID string) error
}
