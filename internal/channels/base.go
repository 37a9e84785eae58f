package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
	"github.com/dayuer/chatgw/internal/secrets"
	"github.com/dayuer/chatgw/internal/utils"
)

// maxResponseBytes caps how much of a provider reply is read.
const maxResponseBytes = 1 << 20

// Options carries the dependencies shared by the webhook adapters.
type Options struct {
	Secrets    *secrets.Cache
	HTTPClient *http.Client
	APIBase    string
	APIVersion string
	Timeout    time.Duration
	Logger     *zap.Logger
}

// BaseAdapter provides the secret lookup, handshake, signature and HTTP
// plumbing common to every webhook channel.
type BaseAdapter struct {
	channel    Channel
	secrets    *secrets.Cache
	client     *http.Client
	apiBase    string
	apiVersion string
	maxLen     int
	sigHeader  string
	sigPrefix  string
	log        *zap.Logger
}

func newBaseAdapter(channel Channel, opts Options, defaultBase string) BaseAdapter {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = defaultBase
	}
	return BaseAdapter{
		channel:    channel,
		secrets:    opts.Secrets,
		client:     client,
		apiBase:    base,
		apiVersion: opts.APIVersion,
		log:        logger.OrNop(opts.Logger).Named(channel.Path()),
	}
}

// Channel returns the channel served by the adapter.
func (b *BaseAdapter) Channel() Channel { return b.channel }

func (b *BaseAdapter) bundle(ctx context.Context) (secrets.Bundle, error) {
	if b.secrets == nil {
		return secrets.Bundle{}, nil
	}
	return b.secrets.Get(ctx, string(b.channel))
}

// VerifyHandshake answers the hub challenge with the channel's verify token.
func (b *BaseAdapter) VerifyHandshake(ctx context.Context, query url.Values) (HandshakeResponse, error) {
	bundle, err := b.bundle(ctx)
	if err != nil {
		return HandshakeResponse{}, err
	}
	return VerifyHandshake(b.channel, bundle.VerifyToken, query), nil
}

// ValidateSignature checks the hex HMAC-SHA256 header over the raw body.
func (b *BaseAdapter) ValidateSignature(ctx context.Context, body []byte, header http.Header) (bool, error) {
	bundle, err := b.bundle(ctx)
	if err != nil {
		return false, err
	}
	if bundle.AppSecret == "" {
		b.log.Warn("no app secret configured, rejecting webhook")
		return false, nil
	}
	sig := header.Get(b.sigHeader)
	if b.sigPrefix != "" {
		if !strings.HasPrefix(sig, b.sigPrefix) {
			return false, nil
		}
		sig = strings.TrimPrefix(sig, b.sigPrefix)
	}
	return VerifyHMACSHA256(bundle.AppSecret, body, sig), nil
}

// truncate fits content into the provider's text limit.
func (b *BaseAdapter) truncate(content string) string {
	return utils.TruncateString(content, b.maxLen, "...")
}

// postJSON sends payload and returns the HTTP status with the parsed reply.
func (b *BaseAdapter) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload any) (int, gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("encode %s request: %w", b.channel.Path(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, gjson.Result{}, fmt.Errorf("%s api: %w", b.channel.Path(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, gjson.Result{}, fmt.Errorf("read %s response: %w", b.channel.Path(), err)
	}
	if !gjson.ValidBytes(raw) {
		return resp.StatusCode, gjson.Result{}, fmt.Errorf("%s api: status %d, non-JSON body", b.channel.Path(), resp.StatusCode)
	}
	return resp.StatusCode, gjson.ParseBytes(raw), nil
}

// sendFailed logs a refused delivery and returns it as an error.
func (b *BaseAdapter) sendFailed(vendorID string, err error) error {
	b.log.Error("outbound delivery failed", zap.String("vendor_id", vendorID), zap.Error(err))
	return err
}

// accessToken returns the bundle's access token or a descriptive error.
func (b *BaseAdapter) accessToken(ctx context.Context) (secrets.Bundle, error) {
	bundle, err := b.bundle(ctx)
	if err != nil {
		return bundle, err
	}
	if bundle.AccessToken == "" {
		return bundle, fmt.Errorf("%s: no access token configured", b.channel.Path())
	}
	return bundle, nil
}
