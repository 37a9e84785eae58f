package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultGraphBase    = "https://graph.facebook.com"
	defaultGraphVersion = "v19.0"
	metaSignatureHeader = "X-Hub-Signature-256"
	metaSignaturePrefix = "sha256="

	messengerMaxText = 2000
	instagramMaxText = 1000

	// Send API codes that mean the user cannot be messaged again.
	graphCodeUnavailable   = 551
	graphSubcodeNoSuchUser = 2018001
)

// MessengerAdapter serves the Messenger Platform webhooks used by both
// Facebook Pages and Instagram professional accounts.
type MessengerAdapter struct {
	BaseAdapter
}

// NewFacebook creates the Facebook Messenger adapter.
func NewFacebook(opts Options) *MessengerAdapter {
	return newMessenger(Facebook, opts, messengerMaxText)
}

// NewInstagram creates the Instagram Messaging adapter.
func NewInstagram(opts Options) *MessengerAdapter {
	return newMessenger(Instagram, opts, instagramMaxText)
}

func newMessenger(ch Channel, opts Options, maxLen int) *MessengerAdapter {
	if opts.APIVersion == "" {
		opts.APIVersion = defaultGraphVersion
	}
	base := newBaseAdapter(ch, opts, defaultGraphBase)
	base.maxLen = maxLen
	base.sigHeader = metaSignatureHeader
	base.sigPrefix = metaSignaturePrefix
	return &MessengerAdapter{BaseAdapter: base}
}

// ParseInbound walks entry[].messaging[] and keeps text and media messages.
func (m *MessengerAdapter) ParseInbound(_ context.Context, payload []byte) []NormalizedMessage {
	if !gjson.ValidBytes(payload) {
		m.log.Warn("ignoring non-JSON payload")
		return nil
	}

	var out []NormalizedMessage
	gjson.GetBytes(payload, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("messaging").ForEach(func(_, event gjson.Result) bool {
			out = append(out, m.parseEvent(event)...)
			return true
		})
		return true
	})
	return out
}

func (m *MessengerAdapter) parseEvent(event gjson.Result) []NormalizedMessage {
	sender := event.Get("sender.id").String()
	msg := event.Get("message")
	if sender == "" || !msg.Exists() {
		m.log.Debug("ignoring non-message event", zap.String("event", event.Raw))
		return nil
	}
	if msg.Get("is_echo").Bool() {
		m.log.Debug("ignoring echo of page message", zap.String("mid", msg.Get("mid").String()))
		return nil
	}

	mid := msg.Get("mid").String()
	if text := msg.Get("text").String(); text != "" {
		return []NormalizedMessage{{Channel: m.channel, VendorID: sender, Text: text, MessageID: mid}}
	}

	var out []NormalizedMessage
	msg.Get("attachments").ForEach(func(_, att gjson.Result) bool {
		kind, ok := messengerMediaKind(att.Get("type").String())
		if !ok {
			m.log.Info("ignoring unsupported attachment", zap.String("type", att.Get("type").String()))
			return true
		}
		out = append(out, NormalizedMessage{
			Channel:   m.channel,
			VendorID:  sender,
			Text:      FormatAttachment(kind, att.Get("payload.url").String()),
			MessageID: mid,
		})
		return true
	})
	if len(out) == 0 {
		m.log.Info("ignoring message without text or supported attachments", zap.String("sender", sender))
	}
	return out
}

func messengerMediaKind(t string) (MediaKind, bool) {
	switch t {
	case "image":
		return MediaImage, true
	case "audio":
		return MediaAudio, true
	case "video":
		return MediaVideo, true
	case "file":
		return MediaFile, true
	}
	return "", false
}

// SendOutbound posts a text message through the Send API.
func (m *MessengerAdapter) SendOutbound(ctx context.Context, vendorID, content string) error {
	bundle, err := m.accessToken(ctx)
	if err != nil {
		return m.sendFailed(vendorID, err)
	}

	endpoint := fmt.Sprintf("%s/%s/me/messages?access_token=%s",
		m.apiBase, m.apiVersion, url.QueryEscape(bundle.AccessToken))
	payload := map[string]any{
		"recipient":      map[string]string{"id": vendorID},
		"messaging_type": "RESPONSE",
		"message":        map[string]string{"text": m.truncate(content)},
	}

	status, reply, err := m.postJSON(ctx, endpoint, nil, payload)
	if err != nil {
		return m.sendFailed(vendorID, err)
	}
	if status == http.StatusOK && reply.Get("message_id").String() != "" {
		return nil
	}
	return m.sendFailed(vendorID, graphError(m.channel, status, reply))
}

// graphError converts a Graph API error object, flagging permanent recipient failures.
func graphError(ch Channel, status int, reply gjson.Result) error {
	code := reply.Get("error.code").Int()
	sub := reply.Get("error.error_subcode").Int()
	err := fmt.Errorf("%s api: status %d, code %d: %s", ch.Path(), status, code, reply.Get("error.message").String())
	if code == graphCodeUnavailable || sub == graphSubcodeNoSuchUser {
		return fmt.Errorf("%w: %w", ErrRecipientGone, err)
	}
	return err
}
