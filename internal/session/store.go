// Package session tracks uploaded files between the upload call and the
// load that consumes them. Sessions are in-memory: a restart forgets
// them, but the stored objects remain and can be re-uploaded.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andresvega/loaderd/internal/domain"
)

// ErrSessionNotFound is returned when a session id is unknown or expired.
var ErrSessionNotFound = errors.New("upload session not found")

// Store holds upload sessions in memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.UploadSession
	ttl      time.Duration
}

// NewStore creates a Store. ttl bounds session lifetime; zero means
// sessions never expire.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*domain.UploadSession),
		ttl:      ttl,
	}
}

// Create registers a new session for a stored upload and returns it.
func (s *Store) Create(fileName, storageKey string, columns []string, sample []domain.Row) *domain.UploadSession {
	sess := &domain.UploadSession{
		ID:         uuid.New().String(),
		FileName:   fileName,
		StorageKey: storageKey,
		Columns:    columns,
		RowsSample: sample,
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns the session, or ErrSessionNotFound when unknown or expired.
func (s *Store) Get(id string) (*domain.UploadSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.ttl > 0 && time.Since(sess.CreatedAt) > s.ttl {
		s.Delete(id)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete forgets a session. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
