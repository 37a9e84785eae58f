package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/logger"
)

// ServerOptions configures the webhook HTTP server.
type ServerOptions struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// Server exposes /webhook/{channel} for every enabled webhook channel.
type Server struct {
	opts     ServerOptions
	registry *channels.Registry
	inbound  *Inbound
	router   chi.Router
	srv      *http.Server
	log      *zap.Logger
}

// NewServer builds the router. Call Start to listen.
func NewServer(opts ServerOptions, registry *channels.Registry, inbound *Inbound, log *zap.Logger) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		opts:     opts,
		registry: registry,
		inbound:  inbound,
		log:      logger.OrNop(log).Named("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/webhook/{channel}", s.handleHandshake)
	r.Post("/webhook/{channel}", s.handleWebhook)
	r.NotFound(unroutable)
	r.MethodNotAllowed(unroutable)

	s.router = r
	return s
}

// MountEvents exposes POST /events/{topic}. Call before Start.
func (s *Server) MountEvents(e *EventIngress) {
	s.router.Post("/events/{topic}", e.ServeHTTP)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}
	s.log.Info("listening", zap.String("addr", s.opts.Addr), zap.Strings("channels", s.webhookNames()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("shutdown", zap.Error(err))
		}
	}()

	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return nil
}

func (s *Server) webhookNames() []string {
	var names []string
	for _, ch := range s.registry.Channels() {
		if _, ok := s.registry.Webhook(ch.Path()); ok {
			names = append(names, ch.Path())
		}
	}
	return names
}

func unroutable(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusBadRequest)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var names []string
	for _, ch := range s.registry.Channels() {
		names = append(names, ch.Path())
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "channels": names})
}

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.registry.Webhook(chi.URLParam(r, "channel"))
	if !ok {
		unroutable(w, r)
		return
	}
	resp, err := adapter.VerifyHandshake(r.Context(), r.URL.Query())
	if err != nil {
		s.log.Error("handshake failed", zap.String("channel", string(adapter.Channel())), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.registry.Webhook(chi.URLParam(r, "channel"))
	if !ok {
		unroutable(w, r)
		return
	}
	log := s.log.With(
		zap.String("channel", string(adapter.Channel())),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	valid, err := adapter.ValidateSignature(r.Context(), body, r.Header)
	if err != nil {
		log.Error("signature check failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !valid {
		log.Warn("rejected webhook with invalid signature")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	msgs := adapter.ParseInbound(r.Context(), body)
	if err := s.inbound.Deliver(r.Context(), msgs); err != nil {
		log.Error("inbound delivery failed", zap.Int("messages", len(msgs)), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
