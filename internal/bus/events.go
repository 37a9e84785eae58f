// Package bus carries contact-center events and SMS notifications into the
// gateway over Redis pub/sub, a WebSocket relay or an in-process queue.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Event types and roles of the contact-center message stream.
const (
	TypeMessage    = "MESSAGE"
	TypeAttachment = "ATTACHMENT"
	TypeEvent      = "EVENT"

	RoleCustomer = "CUSTOMER"
	RoleAgent    = "AGENT"
	RoleSystem   = "SYSTEM"

	// AttrVisibility is the message attribute the subscription filter reads.
	AttrVisibility = "MessageVisibility"
)

// OutboundEvent is one item of a chat's message stream.
type OutboundEvent struct {
	ContactID         string `json:"ContactId"`
	Type              string `json:"Type"`
	Content           string `json:"Content,omitempty"`
	ContentType       string `json:"ContentType,omitempty"`
	ParticipantRole   string `json:"ParticipantRole,omitempty"`
	MessageVisibility string `json:"MessageVisibility,omitempty"`
	DisplayName       string `json:"DisplayName,omitempty"`
	ID                string `json:"Id,omitempty"`
}

// ErrMalformed is returned for payloads that are not JSON objects.
var ErrMalformed = errors.New("malformed event payload")

// Unwrap strips an SNS notification envelope if present and returns the inner
// body with its message attributes. Other payloads are returned as they are.
func Unwrap(raw []byte) ([]byte, map[string]string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, nil, ErrMalformed
	}
	env := gjson.ParseBytes(raw)
	if !env.IsObject() {
		return nil, nil, ErrMalformed
	}

	attrs := map[string]string{}
	if env.Get("Type").String() != "Notification" || !env.Get("Message").Exists() {
		return raw, attrs, nil
	}
	env.Get("MessageAttributes").ForEach(func(k, v gjson.Result) bool {
		// SNS shape {"Type":"String","Value":"CUSTOMER"}; plain strings also accepted.
		if val := v.Get("Value"); val.Exists() {
			attrs[k.String()] = val.String()
		} else {
			attrs[k.String()] = v.String()
		}
		return true
	})
	return []byte(env.Get("Message").String()), attrs, nil
}

// DecodeOutbound parses a raw or enveloped stream event. The envelope's
// MessageVisibility attribute fills the field when the body omits it.
func DecodeOutbound(raw []byte) (OutboundEvent, error) {
	body, attrs, err := Unwrap(raw)
	if err != nil {
		return OutboundEvent{}, err
	}
	var ev OutboundEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return OutboundEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.MessageVisibility == "" {
		ev.MessageVisibility = attrs[AttrVisibility]
	}
	return ev, nil
}
