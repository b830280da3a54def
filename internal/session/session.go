// Package session holds the process-wide sign-in state: the opaque bearer
// credential and the identity it belongs to.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kalambet/profedit/internal/config"
	"github.com/kalambet/profedit/internal/profile"
)

var (
	// ErrNoCredential means nobody is signed in.
	ErrNoCredential = errors.New("no session credential")
	// ErrExpired means the credential carried an exp claim that has passed.
	ErrExpired = errors.New("session credential expired")
)

// Session is safe for concurrent use. The zero value is not usable; call New.
type Session struct {
	mu       sync.RWMutex
	token    string
	identity profile.Identity
	expires  time.Time

	secrets config.SecretStore
	now     func() time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns an empty session. secrets may be nil, in which case Init and
// Teardown do not persist anything.
func New(secrets config.SecretStore, opts ...Option) *Session {
	s := &Session{secrets: secrets, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init installs a credential and identity, persisting the credential.
// Credentials that parse as JWTs are checked for expiry; anything else is
// treated as opaque.
func (s *Session) Init(token string, identity profile.Identity) error {
	if token == "" {
		return ErrNoCredential
	}
	exp := expiryOf(token)
	if !exp.IsZero() && !s.now().Before(exp) {
		return ErrExpired
	}

	// A failed write leaves the previous credential in place.
	if s.secrets != nil {
		if err := s.secrets.Set(config.SecretService, config.SessionAccount, token); err != nil {
			return fmt.Errorf("persisting credential: %w", err)
		}
	}

	s.mu.Lock()
	s.token, s.identity, s.expires = token, identity, exp
	s.mu.Unlock()
	return nil
}

// Restore installs a previously persisted credential without re-persisting it.
// An expired credential is discarded from the secret store.
func (s *Session) Restore(token string) error {
	if token == "" {
		return ErrNoCredential
	}
	exp := expiryOf(token)
	if !exp.IsZero() && !s.now().Before(exp) {
		s.forget()
		return ErrExpired
	}
	s.mu.Lock()
	s.token, s.expires = token, exp
	s.mu.Unlock()
	return nil
}

// Teardown drops the credential and identity and removes the persisted copy.
func (s *Session) Teardown() error {
	s.mu.Lock()
	s.token, s.identity, s.expires = "", profile.Identity{}, time.Time{}
	s.mu.Unlock()
	return s.forget()
}

// Credential returns the current bearer credential. An expired credential
// tears the session down.
func (s *Session) Credential() (string, error) {
	s.mu.RLock()
	token, exp := s.token, s.expires
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoCredential
	}
	if !exp.IsZero() && !s.now().Before(exp) {
		_ = s.Teardown()
		return "", ErrExpired
	}
	return token, nil
}

// Authenticated reports whether a usable credential is present.
func (s *Session) Authenticated() bool {
	_, err := s.Credential()
	return err == nil
}

// Identity returns the signed-in identity, if known.
func (s *Session) Identity() (profile.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.token != "" && s.identity.Username != ""
}

// SetIdentity records the identity learned from a profile fetch.
func (s *Session) SetIdentity(identity profile.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		s.identity = identity
	}
}

// ExpiresAt returns the credential expiry, zero when unknown.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

func (s *Session) forget() error {
	if s.secrets == nil {
		return nil
	}
	if err := s.secrets.Delete(config.SecretService, config.SessionAccount); err != nil {
		return fmt.Errorf("removing credential: %w", err)
	}
	return nil
}

// expiryOf reads the exp claim without verifying the signature; the store
// remains the authority on validity.
func expiryOf(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
