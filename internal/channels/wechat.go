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
	defaultWeChatBase     = "https://api.weixin.qq.com"
	wechatSignatureHeader = "X-Wechat-Signature"
	wechatMaxText         = 2000

	// errcode for an openid that does not belong to the account.
	wechatInvalidOpenID = 40003
)

// WeChatAdapter implements the WeChat Official Account channel.
type WeChatAdapter struct {
	BaseAdapter
}

// NewWeChat creates a WeChatAdapter.
func NewWeChat(opts Options) *WeChatAdapter {
	base := newBaseAdapter(WeChat, opts, defaultWeChatBase)
	base.maxLen = wechatMaxText
	base.sigHeader = wechatSignatureHeader
	return &WeChatAdapter{BaseAdapter: base}
}

// ParseInbound handles one JSON-encoded message push per request.
func (w *WeChatAdapter) ParseInbound(_ context.Context, payload []byte) []NormalizedMessage {
	if !gjson.ValidBytes(payload) {
		w.log.Warn("ignoring non-JSON payload")
		return nil
	}
	msg := gjson.ParseBytes(payload)

	typ := msg.Get("MsgType").String()
	from := msg.Get("FromUserName").String()
	if typ == "" || from == "" {
		w.log.Info("ignoring push without MsgType or sender")
		return nil
	}

	nm := NormalizedMessage{Channel: WeChat, VendorID: from, MessageID: msg.Get("MsgId").String()}
	if typ == "text" {
		nm.Text = msg.Get("Content").String()
		if nm.Text == "" {
			w.log.Info("ignoring empty text message", zap.String("msg_id", nm.MessageID))
			return nil
		}
		return []NormalizedMessage{nm}
	}

	var kind MediaKind
	switch typ {
	case "image":
		kind = MediaImage
	case "voice":
		kind = MediaVoice
	case "video", "shortvideo":
		kind = MediaVideo
	case "file":
		kind = MediaFile
	default:
		w.log.Info("ignoring unsupported message type", zap.String("type", typ))
		return nil
	}
	media := msg.Get("MediaId").String()
	if media == "" {
		w.log.Info("ignoring media message without MediaId", zap.String("type", typ), zap.String("msg_id", nm.MessageID))
		return nil
	}
	nm.Text = FormatAttachment(kind, media)
	return []NormalizedMessage{nm}
}

// SendOutbound posts a text message to the customer-service send API.
func (w *WeChatAdapter) SendOutbound(ctx context.Context, vendorID, content string) error {
	bundle, err := w.accessToken(ctx)
	if err != nil {
		return w.sendFailed(vendorID, err)
	}

	endpoint := fmt.Sprintf("%s/cgi-bin/message/custom/send?access_token=%s",
		w.apiBase, url.QueryEscape(bundle.AccessToken))
	payload := map[string]any{
		"touser":  vendorID,
		"msgtype": "text",
		"text":    map[string]string{"content": w.truncate(content)},
	}

	status, reply, err := w.postJSON(ctx, endpoint, nil, payload)
	if err != nil {
		return w.sendFailed(vendorID, err)
	}
	code := reply.Get("errcode")
	if status == http.StatusOK && code.Exists() && code.Int() == 0 {
		return nil
	}
	err = fmt.Errorf("wechat api: status %d, errcode %d: %s", status, code.Int(), reply.Get("errmsg").String())
	if code.Int() == wechatInvalidOpenID {
		err = fmt.Errorf("%w: %w", ErrRecipientGone, err)
	}
	return w.sendFailed(vendorID, err)
}
