package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrNoChannels is returned when no channel has its credentials configured.
var ErrNoChannels = errors.New("no channel enabled: configure at least one of sms, facebook, whatsapp, instagram, zalo or wechat")

// EnabledChannels returns the lower-case names of the channels that are enabled.
func (c Config) EnabledChannels() []string {
	var names []string
	if c.Channels.SMS.Enabled() {
		names = append(names, "sms")
	}
	for _, ch := range []struct {
		name string
		cfg  WebhookChannelConfig
	}{
		{"facebook", c.Channels.Facebook},
		{"whatsapp", c.Channels.WhatsApp},
		{"instagram", c.Channels.Instagram},
		{"zalo", c.Channels.Zalo},
		{"wechat", c.Channels.WeChat},
	} {
		if ch.cfg.Enabled() {
			names = append(names, ch.name)
		}
	}
	return names
}

// Validate checks for configuration errors that must stop the process at
// startup. Nothing here is defaulted silently.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "warning", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if !slices.Contains([]string{"json", "console"}, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d is out of range", c.Server.Port))
	}

	sms := c.Channels.SMS
	switch {
	case sms.ApplicationID != "" && sms.OriginationNumber == "":
		errs = append(errs, errors.New("channels.sms: origination_number is required when application_id is set"))
	case sms.ApplicationID == "" && sms.OriginationNumber != "":
		errs = append(errs, errors.New("channels.sms: application_id is required when origination_number is set"))
	}
	if len(c.EnabledChannels()) == 0 {
		errs = append(errs, ErrNoChannels)
	}

	switch c.ContactCenter.Backend {
	case "connect":
		if c.ContactCenter.InstanceID == "" {
			errs = append(errs, errors.New("contact_center.instance_id is required"))
		}
		if c.ContactCenter.ContactFlowID == "" {
			errs = append(errs, errors.New("contact_center.contact_flow_id is required"))
		}
	case "loopback":
	default:
		errs = append(errs, fmt.Errorf("contact_center.backend: unknown backend %q", c.ContactCenter.Backend))
	}

	if !slices.Contains([]string{"redis", "sqlite", "memory"}, c.Directory.Backend) {
		errs = append(errs, fmt.Errorf("directory.backend: unknown backend %q", c.Directory.Backend))
	}
	if c.Directory.TTL <= 0 {
		errs = append(errs, errors.New("directory.ttl must be positive"))
	}
	if !slices.Contains([]string{"aws", "redis", "file"}, c.Secrets.Backend) {
		errs = append(errs, fmt.Errorf("secrets.backend: unknown backend %q", c.Secrets.Backend))
	}
	if c.Secrets.Backend == "file" && c.Secrets.FilePath == "" {
		errs = append(errs, errors.New("secrets.file_path is required for the file backend"))
	}

	switch c.Events.Source {
	case "redis":
	case "websocket":
		if c.Events.WebSocketURL == "" {
			errs = append(errs, errors.New("events.websocket_url is required for the websocket source"))
		}
		if c.Channels.SMS.Enabled() {
			errs = append(errs, errors.New("events.source websocket cannot carry sms notifications; use redis"))
		}
	case "http":
		if c.Events.HTTPToken == "" {
			errs = append(errs, errors.New("events.http_token is required for the http source"))
		}
	default:
		errs = append(errs, fmt.Errorf("events.source: unknown source %q", c.Events.Source))
	}

	return errors.Join(errs...)
}
