// Package config handles configuration loading, validation, and schema definition.
package config

import "time"

// Config is the top-level chatgw configuration.
// Uses snake_case yaml tags to match the config file format.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Redis         RedisConfig         `yaml:"redis"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	ContactCenter ContactCenterConfig `yaml:"contact_center"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Events        EventsConfig        `yaml:"events"`
	PII           PIIConfig           `yaml:"pii"`
}

// ServerConfig holds the webhook HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// RedisConfig holds Redis connection settings shared by every Redis-backed component.
type RedisConfig struct {
	URL       string `yaml:"url"` // redis://host:port
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// DirectoryConfig selects the participant directory backend.
type DirectoryConfig struct {
	Backend       string        `yaml:"backend"` // redis | sqlite | memory
	SQLitePath    string        `yaml:"sqlite_path"`
	TTL           time.Duration `yaml:"ttl"`
	PurgeInterval time.Duration `yaml:"purge_interval"` // sqlite only
}

// SecretsConfig selects where channel credential blobs are fetched from.
type SecretsConfig struct {
	Backend  string `yaml:"backend"` // aws | redis | file
	Region   string `yaml:"region"`
	FilePath string `yaml:"file_path"`
}

// ContactCenterConfig holds the Amazon Connect chat settings.
type ContactCenterConfig struct {
	Backend              string        `yaml:"backend"` // connect | loopback
	Region               string        `yaml:"region"`
	InstanceID           string        `yaml:"instance_id"`
	ContactFlowID        string        `yaml:"contact_flow_id"`
	StreamingEndpointARN string        `yaml:"streaming_endpoint_arn"`
	Timeout              time.Duration `yaml:"timeout"`
}

// ChannelsConfig holds per-channel settings. A webhook channel is enabled
// when its secret reference is set; SMS needs both application id and number.
type ChannelsConfig struct {
	Facebook  WebhookChannelConfig `yaml:"facebook"`
	WhatsApp  WebhookChannelConfig `yaml:"whatsapp"`
	Instagram WebhookChannelConfig `yaml:"instagram"`
	Zalo      WebhookChannelConfig `yaml:"zalo"`
	WeChat    WebhookChannelConfig `yaml:"wechat"`
	SMS       SMSChannelConfig     `yaml:"sms"`
}

// WebhookChannelConfig holds settings for a webhook-based provider.
type WebhookChannelConfig struct {
	SecretRef  string        `yaml:"secret_ref"`
	APIBase    string        `yaml:"api_base,omitempty"`    // override for tests and proxies
	APIVersion string        `yaml:"api_version,omitempty"` // Graph API version (Meta channels)
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// Enabled reports whether the channel has a secret reference configured.
func (c WebhookChannelConfig) Enabled() bool {
	return c.SecretRef != ""
}

// SMSChannelConfig holds the Amazon Pinpoint two-way SMS settings.
type SMSChannelConfig struct {
	ApplicationID     string `yaml:"application_id"`
	OriginationNumber string `yaml:"origination_number"`
	Region            string `yaml:"region"`
}

// Enabled reports whether both halves of the SMS configuration are present.
func (c SMSChannelConfig) Enabled() bool {
	return c.ApplicationID != "" && c.OriginationNumber != ""
}

// EventsConfig selects the transport carrying outbound events and SMS notifications.
type EventsConfig struct {
	Source            string   `yaml:"source"` // redis | websocket | http
	OutboundChannel   string   `yaml:"outbound_channel"`
	SMSInboundChannel string   `yaml:"sms_inbound_channel"`
	WebSocketURL      string   `yaml:"websocket_url"`
	WebSocketToken    string   `yaml:"websocket_token"`
	HTTPToken         string   `yaml:"http_token"` // required by POST /events/{topic}
	QueueSize         int      `yaml:"queue_size"` // http source buffer per topic
	Visibility        []string `yaml:"visibility"`
	Workers           int      `yaml:"workers"`
}

// PIIConfig enables redaction of inbound text before it reaches the contact center.
type PIIConfig struct {
	RedactionTypes []string `yaml:"redaction_types,omitempty"`
	LanguageCode   string   `yaml:"language_code,omitempty"`
	Region         string   `yaml:"region,omitempty"`
}

// Enabled reports whether any PII entity type is configured.
func (c PIIConfig) Enabled() bool {
	return len(c.RedactionTypes) > 0
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			URL:       "redis://localhost:6379",
			KeyPrefix: "chatgw:",
		},
		Directory: DirectoryConfig{
			Backend:       "redis",
			SQLitePath:    "chatgw.db",
			TTL:           25 * time.Hour,
			PurgeInterval: 10 * time.Minute,
		},
		Secrets: SecretsConfig{
			Backend: "aws",
		},
		ContactCenter: ContactCenterConfig{
			Backend: "connect",
			Timeout: 10 * time.Second,
		},
		Events: EventsConfig{
			Source:            "redis",
			OutboundChannel:   "chatgw:outbound",
			SMSInboundChannel: "chatgw:sms:inbound",
			QueueSize:         256,
			Visibility:        []string{"CUSTOMER", "ALL"},
			Workers:           16,
		},
		PII: PIIConfig{
			LanguageCode: "en",
		},
	}
}
