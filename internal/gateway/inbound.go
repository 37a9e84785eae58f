// Package gateway moves messages between external channels and the contact
// center: the webhook surface and inbound dispatcher in one direction, the
// outbound dispatcher in the other.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/bus"
	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/contactcenter"
	"github.com/dayuer/chatgw/internal/directory"
	"github.com/dayuer/chatgw/internal/logger"
	"github.com/dayuer/chatgw/internal/redact"
)

// Inbound forwards normalized customer messages into contact-center chats.
type Inbound struct {
	registry *channels.Registry
	dir      *directory.Directory
	chats    contactcenter.Client
	redactor redact.Redactor
	log      *zap.Logger
}

// NewInbound creates an Inbound dispatcher. A nil redactor leaves text as is.
func NewInbound(registry *channels.Registry, dir *directory.Directory, chats contactcenter.Client, redactor redact.Redactor, log *zap.Logger) *Inbound {
	if redactor == nil {
		redactor = redact.Nop{}
	}
	return &Inbound{
		registry: registry,
		dir:      dir,
		chats:    chats,
		redactor: redactor,
		log:      logger.OrNop(log).Named("inbound"),
	}
}

// Deliver posts every message in order and stops at the first internal
// error, which the caller surfaces so the provider redelivers the batch.
func (in *Inbound) Deliver(ctx context.Context, msgs []channels.NormalizedMessage) error {
	for _, m := range msgs {
		if err := in.deliverOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (in *Inbound) deliverOne(ctx context.Context, m channels.NormalizedMessage) error {
	text, err := in.redactor.Redact(ctx, m.Text)
	if err != nil {
		return fmt.Errorf("redact %s message: %w", m.Channel.Path(), err)
	}

	stale, err := in.post(ctx, m, text)
	if !errors.Is(err, contactcenter.ErrSessionEnded) {
		return err
	}

	// The chat ended on the contact-center side; open a new one once. Only the
	// record whose credential failed is dropped: a concurrent delivery may
	// already have replaced it with a live chat.
	in.log.Info("chat ended, starting a new one",
		zap.String("contact_id", stale.ContactID),
		zap.String("channel", string(m.Channel)),
		zap.String("vendor_id", m.VendorID))
	if stale.ContactID != "" {
		if err := in.dir.Delete(ctx, stale.ContactID); err != nil {
			return err
		}
	}
	_, err = in.post(ctx, m, text)
	return err
}

// post returns the participant it used, also when posting failed.
func (in *Inbound) post(ctx context.Context, m channels.NormalizedMessage, text string) (directory.Participant, error) {
	p, err := in.dir.GetOrCreate(ctx, m.Channel, m.VendorID)
	if err != nil {
		return p, fmt.Errorf("participant for %s/%s: %w", m.Channel.Path(), m.VendorID, err)
	}
	if err := in.chats.SendMessage(ctx, p.ConnectionToken, text); err != nil {
		return p, fmt.Errorf("post to contact %s: %w", p.ContactID, err)
	}
	if err := in.dir.Touch(ctx, p.ContactID); err != nil {
		in.log.Warn("touch failed", zap.String("contact_id", p.ContactID), zap.Error(err))
	}

	in.log.Debug("message delivered",
		zap.String("contact_id", p.ContactID),
		zap.String("channel", string(m.Channel)),
		zap.String("message_id", m.MessageID))
	return p, nil
}

// HandleNotification is the bus handler for SMS notifications. There is no
// caller to retry, so failures are logged.
func (in *Inbound) HandleNotification(ctx context.Context, payload []byte) {
	adapter, ok := in.registry.Get(channels.SMS)
	if !ok {
		in.log.Warn("sms notification received but sms is not enabled")
		return
	}
	body, _, err := bus.Unwrap(payload)
	if err != nil {
		in.log.Warn("ignoring malformed sms notification", zap.Error(err))
		return
	}
	if err := in.Deliver(ctx, adapter.ParseInbound(ctx, body)); err != nil {
		in.log.Error("sms delivery failed", zap.Error(err))
	}
}

// SenderKey orders SMS notifications by the customer's number.
func SenderKey(payload []byte) string {
	body, _, err := bus.Unwrap(payload)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(body, "originationNumber").String()
}
