// Package contactcenter starts customer chat sessions in the contact center
// and posts customer messages into them.
package contactcenter

import (
	"context"
	"errors"

	"github.com/dayuer/chatgw/internal/channels"
)

// ErrSessionEnded is returned when the contact center rejects a credential
// because the chat it belongs to has ended.
var ErrSessionEnded = errors.New("contact center session ended")

// Session identifies a newly started chat.
type Session struct {
	ContactID        string
	ParticipantToken string
}

// Client is the contact-center surface the gateway depends on.
type Client interface {
	// StartChat opens a chat session on behalf of an external user.
	StartChat(ctx context.Context, ch channels.Channel, vendorID string) (Session, error)

	// CreateConnection exchanges a participant token for a connection token.
	CreateConnection(ctx context.Context, participantToken string) (string, error)

	// SendMessage posts customer text into the chat owning connectionToken.
	SendMessage(ctx context.Context, connectionToken, content string) error
}
