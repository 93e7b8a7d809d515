package migration

import (
	"sort"
	"sync"
)

// InmemStore implements the Store interface with in-memory maps.
type InmemStore struct {
	sync.RWMutex
	byToken  map[Token]*Migration
	byClient map[string]*Migration
}

// NewInmemStore creates a new empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		byToken:  make(map[Token]*Migration),
		byClient: make(map[string]*Migration),
	}
}

// Register implements the Store interface.
func (s *InmemStore) Register(m *Migration) error {
	if m == nil || m.Client == "" {
		return NewError(InvariantViolation, "", "registering a migration without a client")
	}
	if m.ResumeToken == "" {
		return NewError(InvariantViolation, m.Client, "registering a migration without a resume token")
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.byToken[m.ResumeToken]; ok {
		return NewError(TokenCollision, m.Client, "resume token already in use")
	}
	if _, ok := s.byClient[m.Client]; ok {
		return NewError(ClientBusy, m.Client, "client is already migrating")
	}

	s.byToken[m.ResumeToken] = m
	s.byClient[m.Client] = m

	return nil
}

// Update implements the Store interface. Records are held by pointer so there
// is nothing to write; it only checks that the record is live.
func (s *InmemStore) Update(m *Migration) error {
	s.RLock()
	defer s.RUnlock()

	if cur, ok := s.byToken[m.ResumeToken]; !ok || cur.Client != m.Client {
		return NewError(UnknownClient, m.Client, "updating a migration that is not registered")
	}
	return nil
}

// ByResumeToken implements the Store interface.
func (s *InmemStore) ByResumeToken(token Token) (*Migration, error) {
	s.RLock()
	defer s.RUnlock()

	m, ok := s.byToken[token]
	if !ok {
		return nil, NewError(UnknownToken, "", "no migration for resume token")
	}
	return m, nil
}

// ByClient implements the Store interface.
func (s *InmemStore) ByClient(client string) (*Migration, error) {
	s.RLock()
	defer s.RUnlock()

	m, ok := s.byClient[client]
	if !ok {
		return nil, NewError(UnknownClient, client, "no migration for client")
	}
	return m, nil
}

// Remove implements the Store interface.
func (s *InmemStore) Remove(m *Migration) error {
	s.Lock()
	defer s.Unlock()

	cur, ok := s.byToken[m.ResumeToken]
	if !ok || cur.Client != m.Client {
		return NewError(UnknownClient, m.Client, "removing a migration that is not registered")
	}

	delete(s.byToken, m.ResumeToken)
	delete(s.byClient, m.Client)

	return nil
}

// All implements the Store interface. Migrations are sorted by client.
func (s *InmemStore) All() []*Migration {
	s.RLock()
	defer s.RUnlock()

	res := make([]*Migration, 0, len(s.byClient))
	for _, m := range s.byClient {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Client < res[j].Client })
	return res
}

// Len implements the Store interface.
func (s *InmemStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.byClient)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
