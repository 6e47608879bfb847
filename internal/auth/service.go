package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bilgisen/anitory/internal/models"
	"github.com/rs/zerolog"
)

// Provider is the hosted identity provider.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	SetDisplayName(ctx context.Context, idToken, name string) (*Identity, error)
}

// ProfileStore looks up or creates the profile of a signed-in identity.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, uid, email, displayName string) (*models.UserProfile, error)
}

// Result is a successful sign-up or sign-in.
type Result struct {
	Token   string              `json:"token"`
	Profile *models.UserProfile `json:"profile"`
}

type Service struct {
	provider Provider
	profiles ProfileStore
	sessions *Sessions
	log      zerolog.Logger
}

func NewService(provider Provider, profiles ProfileStore, sessions *Sessions, log zerolog.Logger) *Service {
	return &Service{provider: provider, profiles: profiles, sessions: sessions, log: log}
}

// SignUp creates the account and its profile. The profile is named after
// name, or the default name when none is given.
func (s *Service) SignUp(ctx context.Context, email, password, name string) (*Result, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)

	id, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, s.fail("sign up", email, err)
	}

	displayName := name
	if displayName == "" {
		displayName = models.DefaultName
	}

	if name != "" {
		if updated, err := s.provider.SetDisplayName(ctx, id.IDToken, name); err != nil {
			s.log.Warn().Err(err).Str("user_id", id.UID).Msg("Failed to set display name")
		} else if updated.DisplayName != "" {
			id.DisplayName = updated.DisplayName
		}
	}
	if id.DisplayName == "" {
		id.DisplayName = name
	}
	if id.Email == "" {
		id.Email = email
	}

	return s.open(ctx, *id, displayName)
}

// SignIn verifies the credentials and returns a session with the profile.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Result, error) {
	email = strings.TrimSpace(email)
	id, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.fail("sign in", email, err)
	}
	if id.Email == "" {
		id.Email = email
	}
	return s.open(ctx, *id, id.DisplayName)
}

func (s *Service) open(ctx context.Context, id Identity, profileName string) (*Result, error) {
	profile, err := s.profiles.GetUserProfile(ctx, id.UID, id.Email, profileName)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	token, err := s.sessions.Issue(id)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", id.UID).Msg("Session opened")
	return &Result{Token: token, Profile: profile}, nil
}

// fail logs the provider error and returns the user-facing form of it.
func (s *Service) fail(op, email string, err error) error {
	s.log.Warn().Err(err).Str("op", op).Str("email", email).Msg("Authentication failed")
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	return &Error{Message: genericMessage}
}

// Verify returns the claims of a session token.
func (s *Service) Verify(token string) (*Claims, error) {
	return s.sessions.Verify(token)
}
