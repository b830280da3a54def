// Package account signs the local user in and out of the remote profile store.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
)

// ErrMissingCredentials is returned when the username or password is blank.
var ErrMissingCredentials = errors.New("username and password are required")

// Authenticator exchanges a username and password for a session credential.
type Authenticator interface {
	Login(ctx context.Context, usernameOrEmail, password string) (remote.LoginResult, error)
}

// Session holds the credential for the rest of the process.
type Session interface {
	Init(token string, identity profile.Identity) error
	Teardown() error
}

// Reloader refreshes whatever depends on the session.
type Reloader interface {
	Reload(ctx context.Context) error
}

type Service struct {
	auth   Authenticator
	sess   Session
	reload Reloader
	log    *logger.Logger
}

// New builds a Service. reload may be nil when nothing needs refreshing.
func New(auth Authenticator, sess Session, reload Reloader, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{auth: auth, sess: sess, reload: reload, log: log}
}

// SignIn logs in against the store, starts the session and reloads dependents.
func (s *Service) SignIn(ctx context.Context, usernameOrEmail, password string) (profile.Identity, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return profile.Identity{}, ErrMissingCredentials
	}

	res, err := s.auth.Login(ctx, usernameOrEmail, password)
	if err != nil {
		return profile.Identity{}, err
	}
	if err := s.sess.Init(res.Token, res.User); err != nil {
		return profile.Identity{}, fmt.Errorf("starting session: %w", err)
	}
	s.log.Info("signed in", "username", res.User.Username, "email", res.User.Email)

	if s.reload != nil {
		if err := s.reload.Reload(ctx); err != nil {
			s.log.Warn("reload after sign-in failed", "error", err)
		}
	}
	return res.User, nil
}

// SignOut drops the credential. Dependents are reloaded into their
// signed-out state.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.sess.Teardown(); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	s.log.Info("signed out")
	if s.reload != nil {
		_ = s.reload.Reload(ctx)
	}
	return nil
}
