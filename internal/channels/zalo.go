package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultZaloBase     = "https://openapi.zalo.me"
	zaloSignatureHeader = "X-Zalo-Signature"
	zaloMaxText         = 2000
)

// ZaloAdapter implements the Zalo Official Account channel.
type ZaloAdapter struct {
	BaseAdapter
}

// NewZalo creates a ZaloAdapter.
func NewZalo(opts Options) *ZaloAdapter {
	if opts.APIVersion == "" {
		opts.APIVersion = "v2.0"
	}
	base := newBaseAdapter(Zalo, opts, defaultZaloBase)
	base.maxLen = zaloMaxText
	base.sigHeader = zaloSignatureHeader
	return &ZaloAdapter{BaseAdapter: base}
}

// ParseInbound handles the user_send_* events. A Zalo webhook carries one
// event per request.
func (z *ZaloAdapter) ParseInbound(_ context.Context, payload []byte) []NormalizedMessage {
	if !gjson.ValidBytes(payload) {
		z.log.Warn("ignoring non-JSON payload")
		return nil
	}
	event := gjson.ParseBytes(payload)

	name := event.Get("event_name").String()
	if !strings.HasPrefix(name, "user_send_") {
		z.log.Debug("ignoring event", zap.String("event_name", name))
		return nil
	}
	sender := event.Get("sender.id").String()
	if sender == "" {
		z.log.Info("ignoring event without sender", zap.String("event_name", name))
		return nil
	}
	mid := event.Get("message.msg_id").String()

	if text := event.Get("message.text").String(); text != "" && name == "user_send_text" {
		return []NormalizedMessage{{Channel: Zalo, VendorID: sender, Text: text, MessageID: mid}}
	}

	var out []NormalizedMessage
	event.Get("message.attachments").ForEach(func(_, att gjson.Result) bool {
		kind, ok := zaloMediaKind(att.Get("type").String())
		if !ok {
			z.log.Info("ignoring unsupported attachment", zap.String("type", att.Get("type").String()))
			return true
		}
		out = append(out, NormalizedMessage{
			Channel:   Zalo,
			VendorID:  sender,
			Text:      FormatAttachment(kind, att.Get("payload.url").String()),
			MessageID: mid,
		})
		return true
	})
	if len(out) == 0 {
		z.log.Info("ignoring message without text or supported attachments", zap.String("event_name", name))
	}
	return out
}

func zaloMediaKind(t string) (MediaKind, bool) {
	switch t {
	case "image":
		return MediaImage, true
	case "audio", "voice":
		return MediaAudio, true
	case "video":
		return MediaVideo, true
	case "file":
		return MediaFile, true
	}
	return "", false
}

// SendOutbound posts a customer-service text message to the OA API.
func (z *ZaloAdapter) SendOutbound(ctx context.Context, vendorID, content string) error {
	bundle, err := z.accessToken(ctx)
	if err != nil {
		return z.sendFailed(vendorID, err)
	}

	endpoint := fmt.Sprintf("%s/%s/oa/message?access_token=%s",
		z.apiBase, z.apiVersion, url.QueryEscape(bundle.AccessToken))
	payload := map[string]any{
		"recipient": map[string]string{"user_id": vendorID},
		"message":   map[string]string{"text": z.truncate(content)},
	}

	status, reply, err := z.postJSON(ctx, endpoint, nil, payload)
	if err != nil {
		return z.sendFailed(vendorID, err)
	}
	if status == http.StatusOK && zaloAccepted(reply) {
		return nil
	}
	return z.sendFailed(vendorID, fmt.Errorf("zalo api: status %d, error %d: %s",
		status, reply.Get("error").Int(), reply.Get("message").String()))
}

// zaloAccepted reports an explicit success: error 0, or no error field and a
// message id in data.
func zaloAccepted(reply gjson.Result) bool {
	if code := reply.Get("error"); code.Exists() {
		return code.Int() == 0
	}
	return reply.Get("data.message_id").String() != ""
}
