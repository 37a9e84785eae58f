package contactcenter

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/channels"
	"github.com/dayuer/chatgw/internal/logger"
)

// Loopback is an in-memory contact center for local development and tests.
// It records every message it receives.
type Loopback struct {
	mu            sync.Mutex
	sessions      map[string]*loopSession // by contact id
	byParticipant map[string]string
	byConnection  map[string]string
	log           *zap.Logger
}

type loopSession struct {
	channel  channels.Channel
	vendorID string
	ended    bool
	messages []string
}

// NewLoopback creates an empty Loopback.
func NewLoopback(log *zap.Logger) *Loopback {
	return &Loopback{
		sessions:      make(map[string]*loopSession),
		byParticipant: make(map[string]string),
		byConnection:  make(map[string]string),
		log:           logger.OrNop(log).Named("loopback"),
	}
}

// StartChat creates a session with fresh ids.
func (l *Loopback) StartChat(_ context.Context, ch channels.Channel, vendorID string) (Session, error) {
	s := Session{ContactID: uuid.NewString(), ParticipantToken: uuid.NewString()}

	l.mu.Lock()
	l.sessions[s.ContactID] = &loopSession{channel: ch, vendorID: vendorID}
	l.byParticipant[s.ParticipantToken] = s.ContactID
	l.mu.Unlock()

	l.log.Debug("chat started", zap.String("contact_id", s.ContactID), zap.String("vendor_id", vendorID))
	return s, nil
}

// CreateConnection issues a connection token for a live session.
func (l *Loopback) CreateConnection(_ context.Context, participantToken string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byParticipant[participantToken]
	if !ok || l.sessions[id].ended {
		return "", fmt.Errorf("create connection: %w", ErrSessionEnded)
	}
	token := uuid.NewString()
	l.byConnection[token] = id
	return token, nil
}

// SendMessage appends content to the session's transcript.
func (l *Loopback) SendMessage(_ context.Context, connectionToken, content string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byConnection[connectionToken]
	if !ok || l.sessions[id].ended {
		return fmt.Errorf("send message: %w", ErrSessionEnded)
	}
	l.sessions[id].messages = append(l.sessions[id].messages, content)
	return nil
}

// End marks a session as ended; its credentials stop working.
func (l *Loopback) End(contactID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[contactID]; ok {
		s.ended = true
	}
}

// Messages returns the transcript of a session.
func (l *Loopback) Messages(contactID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[contactID]
	if !ok {
		return nil
	}
	return append([]string(nil), s.messages...)
}

// Sessions returns how many chats were started.
func (l *Loopback) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
