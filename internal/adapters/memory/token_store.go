// Package memory provides in-process adapters.
package memory

import (
	"context"
	"sync"

	domainauth "github.com/dkl/dkl-client/internal/domain/auth"
	"github.com/dkl/dkl-client/internal/ports"
)

// TokenStore keeps the session in memory. It is the default store and is safe for concurrent use.
type TokenStore struct {
	mu   sync.RWMutex
	sess domainauth.Session
	set  bool
}

// NewTokenStore returns an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Load(_ context.Context) (domainauth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return domainauth.Session{}, ports.ErrNoSession
	}
	return cloneSession(s.sess), nil
}

func (s *TokenStore) Save(_ context.Context, sess domainauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = cloneSession(sess)
	s.set = true
	return nil
}

func (s *TokenStore) SaveUser(_ context.Context, user domainauth.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return ports.ErrNoSession
	}
	s.sess.User = cloneUser(user)
	return nil
}

func (s *TokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = domainauth.Session{}
	s.set = false
	return nil
}

// Slices are copied so callers cannot mutate stored state.
func cloneSession(sess domainauth.Session) domainauth.Session {
	sess.User = cloneUser(sess.User)
	return sess
}

func cloneUser(u domainauth.UserProfile) domainauth.UserProfile {
	if u.Permissions != nil {
		u.Permissions = append([]domainauth.Permission(nil), u.Permissions...)
	}
	if u.Roles != nil {
		u.Roles = append([]domainauth.Role(nil), u.Roles...)
	}
	return u
}
