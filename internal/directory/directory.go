package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/contactcenter"
	"github.com/dayuer/chatgw/internal/logger"
)

// DefaultTTL keeps a participant slightly longer than a day, past the
// contact center's maximum chat duration.
const DefaultTTL = 25 * time.Hour

// Directory is the participant service shared by the inbound and outbound paths.
type Directory struct {
	store Store
	chats contactcenter.Client
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger
}

// New creates a Directory. A non-positive ttl selects DefaultTTL.
func New(store Store, chats contactcenter.Client, ttl time.Duration, log *zap.Logger) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{
		store: store,
		chats: chats,
		ttl:   ttl,
		now:   time.Now,
		log:   logger.OrNop(log).Named("directory"),
	}
}

// GetOrCreate returns the live participant for (channel, vendorID), starting
// a chat on first contact. The result always carries a connection token.
//
// When two callers race on an unseen pair, exactly one record survives; the
// loser's freshly started chat is abandoned and both callers get the winner.
// If the stored record cannot be connected, it is returned with the error.
func (d *Directory) GetOrCreate(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	p, err := d.store.LookupByVendor(ctx, ch, vendorID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if p, err = d.create(ctx, ch, vendorID); err != nil {
			return Participant{}, err
		}
	default:
		return Participant{}, fmt.Errorf("lookup participant: %w", err)
	}

	if p.ConnectionToken == "" {
		return d.connect(ctx, p)
	}
	return p, nil
}

func (d *Directory) create(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	session, err := d.chats.StartChat(ctx, ch, vendorID)
	if err != nil {
		return Participant{}, fmt.Errorf("start chat: %w", err)
	}

	p := Participant{
		ContactID:        session.ContactID,
		VendorID:         vendorID,
		Channel:          ch,
		ParticipantToken: session.ParticipantToken,
		ExpiresAt:        d.now().Add(d.ttl),
	}
	err = d.store.CreateIfAbsent(ctx, p)
	if err == nil {
		d.log.Info("participant created",
			zap.String("contact_id", p.ContactID),
			zap.String("channel", string(ch)))
		return p, nil
	}

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		return Participant{}, fmt.Errorf("create participant: %w", err)
	}
	d.log.Warn("lost participant creation race, abandoning chat",
		zap.String("orphan_contact_id", p.ContactID),
		zap.String("winner_contact_id", conflict.WinnerID),
		zap.String("channel", string(ch)))

	winner, err := d.store.LookupByVendor(ctx, ch, vendorID)
	if err != nil {
		return Participant{}, fmt.Errorf("read winning participant: %w", err)
	}
	return winner, nil
}

// connect opens a participant connection and stores its token. On failure
// p is returned unchanged so the caller knows which record failed.
func (d *Directory) connect(ctx context.Context, p Participant) (Participant, error) {
	if p.ParticipantToken == "" {
		return p, fmt.Errorf("participant %s has no participant token", p.ContactID)
	}
	token, err := d.chats.CreateConnection(ctx, p.ParticipantToken)
	if err != nil {
		return p, fmt.Errorf("create connection for %s: %w", p.ContactID, err)
	}
	if err := d.AttachConnectionToken(ctx, p.ContactID, token); err != nil {
		return p, err
	}
	p.ConnectionToken = token
	return p, nil
}

// ResolveByVendor returns the live participant for (channel, vendorID) without
// creating one. ErrNotFound is a normal outcome.
func (d *Directory) ResolveByVendor(ctx context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	return d.store.LookupByVendor(ctx, ch, vendorID)
}

// Resolve returns the participant owning a contact-center session.
func (d *Directory) Resolve(ctx context.Context, contactID string) (Participant, error) {
	return d.store.Get(ctx, contactID)
}

// AttachConnectionToken records the credential used to post into the chat.
func (d *Directory) AttachConnectionToken(ctx context.Context, contactID, token string) error {
	if err := d.store.SetConnectionToken(ctx, contactID, token); err != nil {
		return fmt.Errorf("attach connection token to %s: %w", contactID, err)
	}
	return nil
}

// Touch pushes the participant's expiry one TTL into the future.
func (d *Directory) Touch(ctx context.Context, contactID string) error {
	if err := d.store.Extend(ctx, contactID, d.now().Add(d.ttl)); err != nil {
		return fmt.Errorf("touch %s: %w", contactID, err)
	}
	return nil
}

// Delete removes the participant and its vendor index entry.
func (d *Directory) Delete(ctx context.Context, contactID string) error {
	if err := d.store.Delete(ctx, contactID); err != nil {
		return fmt.Errorf("delete %s: %w", contactID, err)
	}
	d.log.Info("participant deleted", zap.String("contact_id", contactID))
	return nil
}
