package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dayuer/chatgw/internal/utils"
)

// GetConfigPath returns the config file path: $CHATGW_CONFIG, or chatgw.yaml
// in the working directory.
func GetConfigPath() string {
	if p := os.Getenv("CHATGW_CONFIG"); p != "" {
		return p
	}
	return "chatgw.yaml"
}

// Load reads configuration from a YAML file and applies environment overrides.
// If path is empty, uses the default config path.
// If the file doesn't exist, returns DefaultConfig() with overrides applied.
func Load(path string) (Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	cfg := DefaultConfig() // start with defaults so zero-value fields get filled

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return DefaultConfig(), fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return DefaultConfig(), fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the CloudFormation-era environment variable names
// on top of the file configuration.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("FB_SECRET", &cfg.Channels.Facebook.SecretRef)
	str("WA_SECRET", &cfg.Channels.WhatsApp.SecretRef)
	str("IN_SECRET", &cfg.Channels.Instagram.SecretRef)
	str("ZALO_SECRET", &cfg.Channels.Zalo.SecretRef)
	str("WECHAT_SECRET", &cfg.Channels.WeChat.SecretRef)
	str("PINPOINT_APP_ID", &cfg.Channels.SMS.ApplicationID)
	str("SMS_NUMBER", &cfg.Channels.SMS.OriginationNumber)

	str("CONNECT_INSTANCE_ID", &cfg.ContactCenter.InstanceID)
	str("CONTACT_FLOW_ID", &cfg.ContactCenter.ContactFlowID)
	str("STREAMING_ENDPOINT_ARN", &cfg.ContactCenter.StreamingEndpointARN)

	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("CHATGW_LOG_LEVEL", &cfg.Log.Level)
	str("CHATGW_DIRECTORY_BACKEND", &cfg.Directory.Backend)
	str("CHATGW_SECRETS_BACKEND", &cfg.Secrets.Backend)
	str("CHATGW_EVENTS_SOURCE", &cfg.Events.Source)
	str("CHATGW_EVENTS_TOKEN", &cfg.Events.HTTPToken)

	if v, ok := lookup("CHATGW_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHATGW_PORT: %q is not a port number", v)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("PII_DETECTION_TYPES"); ok && strings.TrimSpace(v) != "" {
		cfg.PII.RedactionTypes = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Save writes configuration to a YAML file.
func Save(cfg Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
