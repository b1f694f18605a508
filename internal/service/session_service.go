package service

import (
	"context"
	"fmt"
	"sync"

	"fuelcard-client/internal/core/domain"
	"fuelcard-client/internal/core/ports"
	"fuelcard-client/pkg/apperror"

	"github.com/rs/zerolog"
)

// SessionService owns the session token lifecycle and validity state. One
// instance per process; the presentation layer observes it through Current,
// Loading and the OnChange hook, and feeds Current().Validity into
// domain.DecideRoute on every navigation event.
type SessionService struct {
	authority ports.Authority
	tokens    ports.TokenStore
	log       zerolog.Logger

	mu       sync.Mutex
	session  domain.Session
	loading  bool
	onChange func()
}

// NewSessionService creates a SessionService. The session starts Unverified;
// call CheckAuth to derive validity from the stored token.
func NewSessionService(authority ports.Authority, tokens ports.TokenStore, log zerolog.Logger) *SessionService {
	return &SessionService{
		authority: authority,
		tokens:    tokens,
		log:       log,
	}
}

// SetOnChange registers a hook invoked after every session or loading-state
// change. The hook must not block; it runs outside the service lock.
func (s *SessionService) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Current returns a copy of the session state.
func (s *SessionService) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Loading reports whether a non-silent CheckAuth is in flight. Silent checks
// never toggle this.
func (s *SessionService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Login exchanges credentials for a token and signs in. Empty fields are
// rejected locally without a network call.
func (s *SessionService) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return apperror.ErrEmptyFields()
	}
	token, err := s.authority.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return s.SignIn(ctx, token)
}

// Register creates an account. The caller logs in separately afterwards.
func (s *SessionService) Register(ctx context.Context, email, password, repeatPassword string) error {
	if email == "" || password == "" || repeatPassword == "" {
		return apperror.ErrEmptyFields()
	}
	if password != repeatPassword {
		return apperror.ErrPasswordMismatch()
	}
	return s.authority.Register(ctx, email, password, repeatPassword)
}

// SignIn stores the token durably and marks the session valid without a
// network call: the caller vouches that authentication just succeeded.
func (s *SessionService) SignIn(ctx context.Context, token string) error {
	if err := s.tokens.Save(ctx, token); err != nil {
		return apperror.Internal(fmt.Errorf("persist token: %w", err))
	}
	s.setSession(domain.Session{Token: token, Validity: domain.ValidityValid})
	s.log.Info().Msg("signed in")
	return nil
}

// SignOut clears the durable token and resets the session. Best-effort: a
// failing storage clear is logged, never surfaced.
func (s *SessionService) SignOut(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear stored token")
	}
	s.setSession(domain.Session{Validity: domain.ValidityUnverified})
	s.log.Info().Msg("signed out")
}

// CheckAuth re-derives validity from the stored token. silent controls only
// the loading indicator, never the decision logic.
//
// Token absent: Invalid, no network call. Authority accepts: Valid. Authority
// rejects (any non-2xx): stored token cleared, Invalid. Transport failure:
// prior validity is preserved (fail-open) and the error is returned so the
// caller can surface it.
func (s *SessionService) CheckAuth(ctx context.Context, silent bool) error {
	if !silent {
		s.setLoading(true)
		defer s.setLoading(false)
	}

	token, err := s.tokens.Load(ctx)
	if err != nil {
		// Storage trouble is as transient as a flaky link: keep prior state.
		return apperror.Internal(fmt.Errorf("read stored token: %w", err))
	}
	if token == "" {
		s.setSession(domain.Session{Validity: domain.ValidityInvalid})
		return nil
	}

	err = s.authority.CheckSession(ctx, token)
	if err == nil {
		s.setSession(domain.Session{Token: token, Validity: domain.ValidityValid})
		return nil
	}

	switch apperror.KindOf(err) {
	case apperror.KindTransport, apperror.KindInternal:
		s.log.Warn().Err(err).Msg("session check inconclusive, keeping previous validity")
		return err
	default:
		// The authority saw the token and said no.
		s.Invalidate(ctx)
		return nil
	}
}

// Invalidate clears the stored token and marks the session invalid. Used when
// any authenticated call reports an authorization failure.
func (s *SessionService) Invalidate(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear rejected token")
	}
	s.setSession(domain.Session{Validity: domain.ValidityInvalid})
	s.log.Info().Msg("session invalidated")
}

// Profile fetches the account overview for the signed-in user.
func (s *SessionService) Profile(ctx context.Context) (*ports.Profile, error) {
	token, err := s.bearer(ctx)
	if err != nil {
		return nil, err
	}
	return s.authority.Profile(ctx, token)
}

// ChangePassword rotates the account password. On success the session is
// signed out; the user logs back in with the new password.
func (s *SessionService) ChangePassword(ctx context.Context, current, newPassword, confirm string) error {
	if newPassword == "" || confirm == "" {
		return apperror.ErrEmptyFields()
	}
	if newPassword != confirm {
		return apperror.ErrPasswordMismatch()
	}

	token, err := s.bearer(ctx)
	if err != nil {
		return err
	}
	if err := s.authority.ChangePassword(ctx, token, current, newPassword, confirm); err != nil {
		return err
	}

	s.SignOut(ctx)
	return nil
}

func (s *SessionService) bearer(ctx context.Context) (string, error) {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		return "", apperror.Internal(fmt.Errorf("read stored token: %w", err))
	}
	if token == "" {
		return "", apperror.ErrNoSession()
	}
	return token, nil
}

func (s *SessionService) setSession(next domain.Session) {
	s.mu.Lock()
	changed := s.session != next
	s.session = next
	notify := s.onChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}

func (s *SessionService) setLoading(v bool) {
	s.mu.Lock()
	changed := s.loading != v
	s.loading = v
	notify := s.onChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}
