// Package secrets fetches per-channel credential bundles from a secret store
// and caches them for the lifetime of the process.
package secrets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Bundle is the credential set of one channel. A zero Bundle means the
// channel is disabled.
type Bundle struct {
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string // WhatsApp Cloud API sender
}

// Disabled reports whether the bundle carries no credentials at all.
func (b Bundle) Disabled() bool {
	return b == Bundle{}
}

// shortNames are the abbreviated prefixes accepted in secret blobs.
var shortNames = map[string][]string{
	"FACEBOOK":  {"FB"},
	"WHATSAPP":  {"WA"},
	"INSTAGRAM": {"IN", "IG"},
}

// ParseBundle decodes a JSON secret blob. Each field is looked up by its plain
// name (VERIFY_TOKEN) first, then by the channel-prefixed spellings
// (ZALO_VERIFY_TOKEN, FB_VERIFY_TOKEN).
func ParseBundle(channel string, blob []byte) (Bundle, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.UseNumber() // numeric ids must not round-trip through float64
	if err := dec.Decode(&raw); err != nil {
		return Bundle{}, fmt.Errorf("decode secret blob: %w", err)
	}

	channel = strings.ToUpper(channel)
	prefixes := append([]string{channel}, shortNames[channel]...)

	field := func(name string) string {
		candidates := []string{name}
		for _, p := range prefixes {
			candidates = append(candidates, p+"_"+name)
		}
		for _, key := range candidates {
			if v, ok := raw[key]; ok && v != nil {
				return strings.TrimSpace(fmt.Sprint(v))
			}
		}
		return ""
	}

	return Bundle{
		VerifyToken:   field("VERIFY_TOKEN"),
		AppSecret:     field("APP_SECRET"),
		AccessToken:   field("ACCESS_TOKEN"),
		PhoneNumberID: field("PHONE_NUMBER_ID"),
	}, nil
}
