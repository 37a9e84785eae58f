package directory

import (
	"context"
	"sync"
	"time"

	"github.com/dayuer/chatgw/internal/channels"
)

type vendorKey struct {
	channel  channels.Channel
	vendorID string
}

// MemoryStore keeps participants in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]Participant
	byVendor map[vendorKey]string
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]Participant),
		byVendor: make(map[vendorKey]string),
		now:      time.Now,
	}
}

// live returns the record for id, dropping it if expired. Caller holds mu.
func (s *MemoryStore) live(id string) (Participant, bool) {
	p, ok := s.byID[id]
	if !ok {
		return Participant{}, false
	}
	if p.Expired(s.now()) {
		s.remove(p)
		return Participant{}, false
	}
	return p, true
}

func (s *MemoryStore) remove(p Participant) {
	delete(s.byID, p.ContactID)
	k := vendorKey{p.Channel, p.VendorID}
	if s.byVendor[k] == p.ContactID {
		delete(s.byVendor, k)
	}
}

func (s *MemoryStore) Get(_ context.Context, contactID string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live(contactID)
	if !ok {
		return Participant{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) LookupByVendor(_ context.Context, ch channels.Channel, vendorID string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byVendor[vendorKey{ch, vendorID}]
	if !ok {
		return Participant{}, ErrNotFound
	}
	p, ok := s.live(id)
	if !ok {
		return Participant{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := vendorKey{p.Channel, p.VendorID}
	if id, ok := s.byVendor[k]; ok {
		if _, live := s.live(id); live {
			return &ConflictError{WinnerID: id}
		}
	}
	if _, ok := s.live(p.ContactID); ok {
		return &ConflictError{WinnerID: p.ContactID}
	}
	s.byID[p.ContactID] = p
	s.byVendor[k] = p.ContactID
	return nil
}

func (s *MemoryStore) SetConnectionToken(_ context.Context, contactID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live(contactID)
	if !ok {
		return ErrNotFound
	}
	p.ConnectionToken = token
	s.byID[contactID] = p
	return nil
}

func (s *MemoryStore) Extend(_ context.Context, contactID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.live(contactID)
	if !ok {
		return ErrNotFound
	}
	p.ExpiresAt = expiresAt
	s.byID[contactID] = p
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[contactID]; ok {
		s.remove(p)
	}
	return nil
}
