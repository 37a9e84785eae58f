package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/bus"
	"github.com/dayuer/chatgw/internal/logger"
)

// TokenParam carries the shared token on SNS HTTPS subscriptions, which
// cannot set headers.
const TokenParam = "token"

// EventIngress accepts outbound events and SMS notifications pushed over
// HTTP (SNS HTTPS subscriptions) and hands them to a Publisher.
type EventIngress struct {
	pub       bus.Publisher
	topics    map[string]string // URL name -> bus topic
	token     string
	client    *http.Client
	snsSuffix string
	maxBody   int64
	log       *zap.Logger
}

// NewEventIngress creates an EventIngress. topics maps the {topic} URL
// segment to the bus topic it publishes on.
func NewEventIngress(pub bus.Publisher, topics map[string]string, token string, log *zap.Logger) *EventIngress {
	return &EventIngress{
		pub:       pub,
		topics:    topics,
		token:     token,
		client:    &http.Client{Timeout: 10 * time.Second},
		snsSuffix: ".amazonaws.com",
		maxBody:   256 << 10,
		log:       logger.OrNop(log).Named("events"),
	}
}

func (e *EventIngress) authorized(r *http.Request) bool {
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if got == "" {
		got = r.URL.Query().Get(TokenParam)
	}
	return e.token != "" && subtle.ConstantTimeCompare([]byte(got), []byte(e.token)) == 1
}

func (e *EventIngress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic, ok := e.topics[chi.URLParam(r, "topic")]
	if !ok {
		unroutable(w, r)
		return
	}
	if !e.authorized(r) {
		e.log.Warn("rejected event push with bad token", zap.String("remote", r.RemoteAddr))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.maxBody))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch gjson.GetBytes(body, "Type").String() {
	case "SubscriptionConfirmation":
		if err := e.confirm(r.Context(), gjson.GetBytes(body, "SubscribeURL").String()); err != nil {
			e.log.Error("subscription confirmation failed", zap.Error(err))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		e.log.Info("subscription confirmed", zap.String("topic_arn", gjson.GetBytes(body, "TopicArn").String()))
		w.WriteHeader(http.StatusOK)
		return
	case "UnsubscribeConfirmation":
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := e.pub.Publish(ctx, topic, body); err != nil {
		e.log.Warn("event queue full", zap.String("topic", topic), zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// confirm visits the SubscribeURL. Only AWS SNS hosts are followed.
func (e *EventIngress) confirm(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), e.snsSuffix) {
		return fmt.Errorf("refusing subscribe url %q", raw)
	}
	return e.get(ctx, u.String())
}

func (e *EventIngress) get(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe url: status %d", resp.StatusCode)
	}
	return nil
}
