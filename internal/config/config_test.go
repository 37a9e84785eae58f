package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Schema Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Directory.Backend)
	assert.Equal(t, 25*time.Hour, cfg.Directory.TTL)
	assert.Equal(t, "aws", cfg.Secrets.Backend)
	assert.Equal(t, []string{"CUSTOMER", "ALL"}, cfg.Events.Visibility)
	assert.Empty(t, cfg.EnabledChannels())
}

func TestEnabledChannels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels.Zalo.SecretRef = "zalo-secret"
	cfg.Channels.WeChat.SecretRef = "wechat-secret"
	cfg.Channels.SMS = SMSChannelConfig{ApplicationID: "app", OriginationNumber: "+15550100"}

	assert.Equal(t, []string{"sms", "zalo", "wechat"}, cfg.EnabledChannels())
}

func TestEnabledChannels_SMSNeedsBothHalves(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Channels.SMS.ApplicationID = "app"
	assert.NotContains(t, cfg.EnabledChannels(), "sms")
}

// --- Validation Tests ---

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.ContactCenter.InstanceID = "instance"
	cfg.ContactCenter.ContactFlowID = "flow"
	cfg.Channels.Facebook.SecretRef = "fb"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_NoChannels(t *testing.T) {
	cfg := validConfig()
	cfg.Channels.Facebook.SecretRef = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestValidate_HalfConfiguredSMS(t *testing.T) {
	cfg := validConfig()
	cfg.Channels.SMS.ApplicationID = "app"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "origination_number")

	cfg = validConfig()
	cfg.Channels.SMS.OriginationNumber = "+15550100"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application_id")
}

func TestValidate_ContactCenterRequired(t *testing.T) {
	cfg := validConfig()
	cfg.ContactCenter.InstanceID = ""
	cfg.ContactCenter.ContactFlowID = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance_id")
	assert.Contains(t, err.Error(), "contact_flow_id")

	cfg.ContactCenter.Backend = "loopback"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Directory.Backend = "dynamo"
	cfg.Secrets.Backend = "vault"
	cfg.Events.Source = "kafka"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dynamo"`)
	assert.Contains(t, err.Error(), `"vault"`)
	assert.Contains(t, err.Error(), `"kafka"`)
}

func TestValidate_WebSocketCannotCarrySMS(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Source = "websocket"
	cfg.Events.WebSocketURL = "ws://relay/events"
	assert.NoError(t, cfg.Validate())

	cfg.Channels.SMS = SMSChannelConfig{ApplicationID: "app", OriginationNumber: "+15550100"}
	assert.Error(t, cfg.Validate())
}

func TestValidate_HTTPSourceNeedsToken(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Source = "http"
	assert.ErrorContains(t, cfg.Validate(), "events.http_token")

	cfg.Events.HTTPToken = "s3cret"
	cfg.Channels.SMS = SMSChannelConfig{ApplicationID: "app", OriginationNumber: "+15550100"}
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsLogAndPortTypos(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	cfg.Log.Format = "text"
	cfg.Server.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `log.level: unknown level "verbose"`)
	assert.Contains(t, err.Error(), `log.format: unknown format "text"`)
	assert.Contains(t, err.Error(), "server.port")

	cfg = validConfig()
	cfg.Log.Level = "WARN"
	cfg.Log.Format = "console"
	assert.NoError(t, cfg.Validate())
}

// --- Loader Tests ---

func TestLoad_FileNotExist(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server, cfg.Server)
	assert.Equal(t, DefaultConfig().Directory, cfg.Directory)
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatgw.yaml")
	content := `
server:
  port: 9090
directory:
  backend: sqlite
  ttl: 2h
channels:
  zalo:
    secret_ref: arn:aws:secretsmanager:zalo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Directory.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Directory.TTL)
	assert.Equal(t, "arn:aws:secretsmanager:zalo", cfg.Channels.Zalo.SecretRef)
	// Defaults should be preserved for unset fields
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WECHAT_SECRET":       "wechat-ref",
		"PINPOINT_APP_ID":     "app-1",
		"SMS_NUMBER":          "+15550100",
		"CONNECT_INSTANCE_ID": "inst",
		"CHATGW_PORT":         "7070",
		"PII_DETECTION_TYPES": "EMAIL, PHONE ,,NAME",
		"CHATGW_LOG_LEVEL":    "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, applyEnv(&cfg, lookup))

	assert.Equal(t, "wechat-ref", cfg.Channels.WeChat.SecretRef)
	assert.Equal(t, "app-1", cfg.Channels.SMS.ApplicationID)
	assert.Equal(t, "+15550100", cfg.Channels.SMS.OriginationNumber)
	assert.Equal(t, "inst", cfg.ContactCenter.InstanceID)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"EMAIL", "PHONE", "NAME"}, cfg.PII.RedactionTypes)
	assert.Equal(t, "info", cfg.Log.Level, "empty env values must not override")
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == "CHATGW_PORT" {
			return "80a", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "CHATGW_PORT")
}

func TestLoad_BadPortInEnvironment(t *testing.T) {
	t.Setenv("CHATGW_PORT", "eighty")
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.ErrorContains(t, err, "CHATGW_PORT")
}

func TestSave_And_Load_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "chatgw.yaml")

	cfg := DefaultConfig()
	cfg.Channels.Instagram.SecretRef = "ig-ref"
	cfg.Events.Workers = 4

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ig-ref", loaded.Channels.Instagram.SecretRef)
	assert.Equal(t, 4, loaded.Events.Workers)
}
