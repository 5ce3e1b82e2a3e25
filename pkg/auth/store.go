package auth

import (
	"sync"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
)

// TokenStore holds the current token and the connection parameters that go with it.
// Reads and writes are safe from any goroutine.
type TokenStore struct {
	mu     sync.RWMutex
	token  entities.Token
	params entities.ConnectionParameters
}

func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Token() entities.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores token and reports whether it differs from the previous value.
func (s *TokenStore) SetToken(token entities.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.token != token
	s.token = token
	return changed
}

func (s *TokenStore) ConnectionParameters() entities.ConnectionParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

func (s *TokenStore) SetConnectionParameters(params entities.ConnectionParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = params
}
