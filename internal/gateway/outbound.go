package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/bus"
	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/directory"
	"github.com/dayuer/chatgw/internal/logger"
)

// Outbound relays agent messages from the contact-center stream to the
// customer's channel. Deliveries are attempted once.
type Outbound struct {
	registry *channels.Registry
	dir      *directory.Directory
	log      *zap.Logger
}

// NewOutbound creates an Outbound dispatcher.
func NewOutbound(registry *channels.Registry, dir *directory.Directory, log *zap.Logger) *Outbound {
	return &Outbound{
		registry: registry,
		dir:      dir,
		log:      logger.OrNop(log).Named("outbound"),
	}
}

// Handle is the bus handler for stream events.
func (o *Outbound) Handle(ctx context.Context, payload []byte) {
	ev, err := bus.DecodeOutbound(payload)
	if err != nil {
		o.log.Warn("ignoring malformed event", zap.Error(err))
		return
	}
	if err := o.Dispatch(ctx, ev); err != nil {
		o.log.Error("outbound delivery failed",
			zap.String("contact_id", ev.ContactID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
}

// Dispatch delivers one event. Events that are not agent-visible messages,
// or whose contact is unknown, are dropped without error.
func (o *Outbound) Dispatch(ctx context.Context, ev bus.OutboundEvent) error {
	if ev.Type != bus.TypeMessage && ev.Type != bus.TypeAttachment {
		o.log.Debug("skipping event", zap.String("type", ev.Type), zap.String("contact_id", ev.ContactID))
		return nil
	}
	if ev.ParticipantRole == bus.RoleCustomer {
		return nil
	}
	if ev.ContactID == "" || ev.Content == "" {
		o.log.Warn("skipping event without contact id or content", zap.String("event_id", ev.ID))
		return nil
	}

	p, err := o.dir.Resolve(ctx, ev.ContactID)
	if errors.Is(err, directory.ErrNotFound) {
		o.log.Warn("no participant for contact", zap.String("contact_id", ev.ContactID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve contact %s: %w", ev.ContactID, err)
	}

	adapter, ok := o.registry.Get(p.Channel)
	if !ok {
		o.log.Warn("channel not enabled",
			zap.String("channel", string(p.Channel)),
			zap.String("contact_id", ev.ContactID))
		return nil
	}

	if err := adapter.SendOutbound(ctx, p.VendorID, ev.Content); err != nil {
		if errors.Is(err, channels.ErrRecipientGone) {
			if delErr := o.dir.Delete(ctx, p.ContactID); delErr != nil {
				o.log.Warn("delete unreachable participant failed", zap.Error(delErr))
			}
		}
		return fmt.Errorf("send to %s: %w", p.Channel.Path(), err)
	}

	o.log.Info("delivered",
		zap.String("contact_id", p.ContactID),
		zap.String("channel", string(p.Channel)),
		zap.String("event_id", ev.ID))
	return nil
}

// ContactKey orders outbound events by contact id.
func ContactKey(payload []byte) string {
	body, _, err := bus.Unwrap(payload)
	if err != nil {
		return ""
	}
	return gjson.GetBytes(body, "ContactId").String()
}
