package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/connectparticipant"
	"github.com/aws/aws-sdk-go-v2/service/pinpoint"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/bus"
	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/config"
	"github.com/dayuer/chatgw/internal/contactcenter"
	"github.com/dayuer/chatgw/internal/directory"
	"github.com/dayuer/chatgw/internal/logger"
	"github.com/dayuer/chatgw/internal/redact"
	"github.com/dayuer/chatgw/internal/redis"
	"github.com/dayuer/chatgw/internal/secrets"
)

// loadConfig reads --config (or the default path) and validates it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app builds the gateway components from configuration. Shared clients are
// created on first use.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	rdb   *goredis.Client
	keys  redis.Keys
	close []func() error
}

func newApp(cfg config.Config) (*app, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &app{cfg: cfg, log: log, keys: redis.Keys{Prefix: cfg.Redis.KeyPrefix}}, nil
}

func (a *app) shutdown() {
	for i := len(a.close) - 1; i >= 0; i-- {
		if err := a.close[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func (a *app) redis(ctx context.Context) (*goredis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := redis.Open(ctx, redis.Config{
		URL:      a.cfg.Redis.URL,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.close = append(a.close, rdb.Close)
	return rdb, nil
}

// aws loads the default credential chain. An empty region keeps the one from
// the environment.
func (a *app) aws(ctx context.Context, region string, timeout time.Duration) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if timeout > 0 {
		opts = append(opts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	return cfg, nil
}

func (a *app) secretStore(ctx context.Context) (secrets.Store, error) {
	switch a.cfg.Secrets.Backend {
	case "aws":
		awsCfg, err := a.aws(ctx, a.cfg.Secrets.Region, 0)
		if err != nil {
			return nil, err
		}
		return secrets.NewAWSStore(secretsmanager.NewFromConfig(awsCfg)), nil
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return secrets.NewRedisStore(rdb, a.keys), nil
	case "file":
		return secrets.NewFileStore(a.cfg.Secrets.FilePath), nil
	}
	return nil, fmt.Errorf("unknown secrets backend %q", a.cfg.Secrets.Backend)
}

// registry creates an adapter for every enabled channel.
func (a *app) registry(ctx context.Context) (*channels.Registry, error) {
	store, err := a.secretStore(ctx)
	if err != nil {
		return nil, err
	}

	c := a.cfg.Channels
	webhooks := []struct {
		ch  channels.Channel
		cfg config.WebhookChannelConfig
		new func(channels.Options) channels.Adapter
	}{
		{channels.Facebook, c.Facebook, func(o channels.Options) channels.Adapter { return channels.NewFacebook(o) }},
		{channels.WhatsApp, c.WhatsApp, func(o channels.Options) channels.Adapter { return channels.NewWhatsApp(o) }},
		{channels.Instagram, c.Instagram, func(o channels.Options) channels.Adapter { return channels.NewInstagram(o) }},
		{channels.Zalo, c.Zalo, func(o channels.Options) channels.Adapter { return channels.NewZalo(o) }},
		{channels.WeChat, c.WeChat, func(o channels.Options) channels.Adapter { return channels.NewWeChat(o) }},
	}

	refs := make(map[string]string)
	for _, w := range webhooks {
		if w.cfg.Enabled() {
			refs[string(w.ch)] = w.cfg.SecretRef
		}
	}
	cache := secrets.NewCache(store, refs, a.log)

	reg := channels.NewRegistry()
	for _, w := range webhooks {
		if !w.cfg.Enabled() {
			continue
		}
		reg.Register(w.new(channels.Options{
			Secrets:    cache,
			APIBase:    w.cfg.APIBase,
			APIVersion: w.cfg.APIVersion,
			Timeout:    w.cfg.Timeout,
			Logger:     a.log,
		}))
	}

	if c.SMS.Enabled() {
		awsCfg, err := a.aws(ctx, c.SMS.Region, 0)
		if err != nil {
			return nil, err
		}
		reg.Register(channels.NewSMS(pinpoint.NewFromConfig(awsCfg), c.SMS.ApplicationID, c.SMS.OriginationNumber, a.log))
	}
	return reg, nil
}

func (a *app) contactCenter(ctx context.Context) (contactcenter.Client, error) {
	cc := a.cfg.ContactCenter
	if cc.Backend == "loopback" {
		a.log.Warn("using the in-memory loopback contact center; messages go nowhere")
		return contactcenter.NewLoopback(a.log), nil
	}
	awsCfg, err := a.aws(ctx, cc.Region, cc.Timeout)
	if err != nil {
		return nil, err
	}
	return contactcenter.NewConnect(
		connect.NewFromConfig(awsCfg),
		connectparticipant.NewFromConfig(awsCfg),
		contactcenter.ConnectOptions{
			InstanceID:           cc.InstanceID,
			ContactFlowID:        cc.ContactFlowID,
			StreamingEndpointARN: cc.StreamingEndpointARN,
		},
		a.log,
	), nil
}

// directoryStore opens the configured backend. The SQLite store is also
// returned so the caller can run its purge loop.
func (a *app) directoryStore(ctx context.Context) (directory.Store, *directory.SQLiteStore, error) {
	switch a.cfg.Directory.Backend {
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, nil, err
		}
		return directory.NewRedisStore(rdb, a.keys), nil, nil
	case "sqlite":
		s, err := directory.NewSQLiteStore(a.cfg.Directory.SQLitePath, a.log)
		if err != nil {
			return nil, nil, err
		}
		a.close = append(a.close, s.Close)
		return s, s, nil
	case "memory":
		return directory.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown directory backend %q", a.cfg.Directory.Backend)
}

func (a *app) redactor(ctx context.Context) (redact.Redactor, error) {
	pii := a.cfg.PII
	if !pii.Enabled() {
		return redact.Nop{}, nil
	}
	awsCfg, err := a.aws(ctx, pii.Region, 0)
	if err != nil {
		return nil, err
	}
	return redact.NewComprehend(comprehend.NewFromConfig(awsCfg), pii.RedactionTypes, pii.LanguageCode, a.log), nil
}

// eventSources returns the outbound-event source and, when the transport can
// carry them, the SMS notification source. The http transport also returns
// the queue that POST /events/{topic} publishes to.
func (a *app) eventSources(ctx context.Context) (outbound, sms bus.Source, queue *bus.MessageBus, err error) {
	ev := a.cfg.Events
	switch ev.Source {
	case "redis":
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		rb := bus.NewRedisBus(rdb, a.log)
		return rb.Subscribe(ev.OutboundChannel), rb.Subscribe(ev.SMSInboundChannel), nil, nil
	case "websocket":
		return bus.NewWebSocketSource(ev.WebSocketURL, ev.WebSocketToken, a.log), nil, nil, nil
	case "http":
		mb := bus.NewMessageBus(ev.QueueSize)
		return mb.Subscribe(ev.OutboundChannel), mb.Subscribe(ev.SMSInboundChannel), mb, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown events source %q", ev.Source)
}

// eventTopics maps the POST /events/{topic} segments to bus topics. sms is
// only accepted when a consumer drains it.
func eventTopics(cfg config.Config) map[string]string {
	topics := map[string]string{"outbound": cfg.Events.OutboundChannel}
	if cfg.Channels.SMS.Enabled() {
		topics["sms"] = cfg.Events.SMSInboundChannel
	}
	return topics
}
