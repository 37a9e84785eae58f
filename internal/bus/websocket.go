package bus

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/logger"
)

const (
	wsMinBackoff = 500 * time.Millisecond
	wsMaxBackoff = 30 * time.Second
	wsPongWait   = 60 * time.Second
)

// WebSocketSource reads events from a relay that pushes one JSON payload per
// text frame. It reconnects with exponential backoff until ctx is cancelled.
type WebSocketSource struct {
	url    string
	token  string
	dialer *websocket.Dialer
	log    *zap.Logger
}

// NewWebSocketSource creates a source for url. token, when set, is sent as a
// bearer Authorization header.
func NewWebSocketSource(url, token string, log *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:    url,
		token:  token,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    logger.OrNop(log).Named("bus.websocket"),
	}
}

func (s *WebSocketSource) Run(ctx context.Context, handle Handler) error {
	backoff := wsMinBackoff
	for {
		connected, err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = wsMinBackoff
		}
		s.log.Warn("relay disconnected, reconnecting",
			zap.String("url", s.url), zap.Duration("backoff", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (s *WebSocketSource) session(ctx context.Context, handle Handler) (connected bool, err error) {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	s.log.Info("relay connected", zap.String("url", s.url))

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		if typ != websocket.TextMessage {
			continue
		}
		handle(ctx, data)
	}
}

var _ Source = (*WebSocketSource)(nil)
