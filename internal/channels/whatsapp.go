package channels

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const whatsappMaxText = 4096

// WhatsAppAdapter implements the WhatsApp Business Cloud API channel.
type WhatsAppAdapter struct {
	BaseAdapter
}

// NewWhatsApp creates a WhatsAppAdapter.
func NewWhatsApp(opts Options) *WhatsAppAdapter {
	if opts.APIVersion == "" {
		opts.APIVersion = defaultGraphVersion
	}
	base := newBaseAdapter(WhatsApp, opts, defaultGraphBase)
	base.maxLen = whatsappMaxText
	base.sigHeader = metaSignatureHeader
	base.sigPrefix = metaSignaturePrefix
	return &WhatsAppAdapter{BaseAdapter: base}
}

// ParseInbound walks entry[].changes[].value.messages[]. Delivery statuses
// arrive on the same webhook and are skipped.
func (w *WhatsAppAdapter) ParseInbound(_ context.Context, payload []byte) []NormalizedMessage {
	if !gjson.ValidBytes(payload) {
		w.log.Warn("ignoring non-JSON payload")
		return nil
	}

	var out []NormalizedMessage
	gjson.GetBytes(payload, "entry.#.changes").ForEach(func(_, changes gjson.Result) bool {
		changes.ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, msg gjson.Result) bool {
				if nm, ok := w.parseMessage(msg); ok {
					out = append(out, nm)
				}
				return true
			})
			return true
		})
		return true
	})
	return out
}

func (w *WhatsAppAdapter) parseMessage(msg gjson.Result) (NormalizedMessage, bool) {
	from := msg.Get("from").String()
	typ := msg.Get("type").String()
	if from == "" {
		w.log.Info("ignoring message without sender")
		return NormalizedMessage{}, false
	}

	nm := NormalizedMessage{Channel: WhatsApp, VendorID: from, MessageID: msg.Get("id").String()}
	if typ == "text" {
		nm.Text = msg.Get("text.body").String()
		if nm.Text == "" {
			w.log.Info("ignoring empty text message", zap.String("id", nm.MessageID))
			return NormalizedMessage{}, false
		}
		return nm, true
	}

	var kind MediaKind
	switch typ {
	case "image", "sticker":
		kind = MediaImage
	case "audio":
		kind = MediaAudio
		if msg.Get("audio.voice").Bool() {
			kind = MediaVoice
		}
	case "video":
		kind = MediaVideo
	case "document":
		kind = MediaFile
	default:
		w.log.Info("ignoring unsupported message type", zap.String("type", typ))
		return NormalizedMessage{}, false
	}
	ref := msg.Get(typ + ".id").String()
	if ref == "" {
		w.log.Info("ignoring media message without id", zap.String("type", typ), zap.String("id", nm.MessageID))
		return NormalizedMessage{}, false
	}
	nm.Text = FormatAttachment(kind, ref)
	return nm, true
}

// SendOutbound posts a text message to /{phone-number-id}/messages.
func (w *WhatsAppAdapter) SendOutbound(ctx context.Context, vendorID, content string) error {
	bundle, err := w.accessToken(ctx)
	if err != nil {
		return w.sendFailed(vendorID, err)
	}
	if bundle.PhoneNumberID == "" {
		return w.sendFailed(vendorID, errors.New("whatsapp: no phone number id configured"))
	}

	endpoint := fmt.Sprintf("%s/%s/%s/messages", w.apiBase, w.apiVersion, bundle.PhoneNumberID)
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                vendorID,
		"type":              "text",
		"text":              map[string]string{"body": w.truncate(content)},
	}
	headers := map[string]string{"Authorization": "Bearer " + bundle.AccessToken}

	status, reply, err := w.postJSON(ctx, endpoint, headers, payload)
	if err != nil {
		return w.sendFailed(vendorID, err)
	}
	if status == http.StatusOK && reply.Get("messages.0.id").String() != "" {
		return nil
	}
	return w.sendFailed(vendorID, graphError(WhatsApp, status, reply))
}
