// Package channels defines the capability set every messaging channel
// implements, and one adapter per supported provider.
package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Channel identifies an external messaging provider.
type Channel string

const (
	SMS       Channel = "SMS"
	Facebook  Channel = "FACEBOOK"
	WhatsApp  Channel = "WHATSAPP"
	Instagram Channel = "INSTAGRAM"
	Zalo      Channel = "ZALO"
	WeChat    Channel = "WECHAT"
)

// All lists every known channel.
var All = []Channel{SMS, Facebook, WhatsApp, Instagram, Zalo, WeChat}

// ParseChannel accepts a channel name in any case ("zalo", "ZALO").
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range All {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Path returns the webhook path segment for the channel.
func (c Channel) Path() string {
	return strings.ToLower(string(c))
}

// DisplayName returns the provider's brand spelling.
func (c Channel) DisplayName() string {
	switch c {
	case Facebook:
		return "Facebook"
	case WhatsApp:
		return "WhatsApp"
	case Instagram:
		return "Instagram"
	case Zalo:
		return "Zalo"
	case WeChat:
		return "WeChat"
	default:
		return string(c)
	}
}

// ErrRecipientGone marks a send failure the provider reports as permanent for
// that recipient (blocked, opted out, unknown user).
var ErrRecipientGone = errors.New("recipient unreachable on channel")

// NormalizedMessage is one customer message extracted from a provider payload.
type NormalizedMessage struct {
	Channel   Channel
	VendorID  string
	Text      string
	MessageID string
}

// HandshakeResponse is the reply to a webhook verification challenge.
type HandshakeResponse struct {
	StatusCode int
	Body       []byte
}

// Adapter is the capability set shared by every channel.
type Adapter interface {
	// Channel returns the channel this adapter serves.
	Channel() Channel

	// ParseInbound extracts zero or more messages from a provider payload.
	// Unrecognized items are logged and skipped; it never fails the batch.
	ParseInbound(ctx context.Context, payload []byte) []NormalizedMessage

	// SendOutbound delivers text to a vendor id through the provider API.
	// A nil error is the provider's explicit acknowledgement; every transport
	// or provider error is logged and returned. Errors wrapping
	// ErrRecipientGone are permanent for the recipient.
	SendOutbound(ctx context.Context, vendorID, content string) error
}

// WebhookAdapter is implemented by channels that deliver over signed HTTP webhooks.
type WebhookAdapter interface {
	Adapter

	// VerifyHandshake answers a GET verification challenge.
	VerifyHandshake(ctx context.Context, query url.Values) (HandshakeResponse, error)

	// ValidateSignature checks the request signature over the raw body.
	// It fails closed when no app secret is configured.
	ValidateSignature(ctx context.Context, body []byte, header http.Header) (bool, error)
}
