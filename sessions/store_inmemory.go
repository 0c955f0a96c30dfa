package sessions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps active sessions in process memory. It stores the
// serialized form so every read, including the one SetActive performs after a
// write, decodes a fresh copy rather than aliasing the caller's value.
type InMemoryStore struct {
	mu         sync.RWMutex
	codec      Codec
	sessions   map[string][]byte
	identities map[string][]byte
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(codec Codec) *InMemoryStore {
	return &InMemoryStore{
		codec:      codec,
		sessions:   make(map[string][]byte),
		identities: make(map[string][]byte),
	}
}

// GetActive returns the active session for key, or nil when none is stored.
func (s *InMemoryStore) GetActive(_ context.Context, key string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	return s.codec.Decode(data)
}

// SetActive replaces the active session for key and returns the stored form.
// A nil session clears the slot.
func (s *InMemoryStore) SetActive(_ context.Context, key string, session *Session) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session == nil {
		delete(s.sessions, key)
		return nil, nil
	}

	data, err := s.codec.Encode(session)
	if err != nil {
		return nil, err
	}
	s.sessions[key] = data
	return s.codec.Decode(data)
}

// GetActiveIdentity returns the active social identity pointer for key.
func (s *InMemoryStore) GetActiveIdentity(_ context.Context, key string) (*ActiveIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.identities[key]
	if !ok {
		return nil, nil
	}
	var identity ActiveIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, errors.Wrap(err, "[InMemoryStore.GetActiveIdentity] failed to unmarshal identity")
	}
	return &identity, nil
}

// SetActiveIdentity replaces the active social identity pointer for key. A
// nil identity clears it.
func (s *InMemoryStore) SetActiveIdentity(_ context.Context, key string, identity *ActiveIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity == nil {
		delete(s.identities, key)
		return nil
	}
	data, err := json.Marshal(identity)
	if err != nil {
		return errors.Wrap(err, "[InMemoryStore.SetActiveIdentity] failed to marshal identity")
	}
	s.identities[key] = data
	return nil
}
