package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"social-login-service/internal/domain"
	"social-login-service/internal/observability"
	"social-login-service/internal/provider"
	"social-login-service/internal/storage"
)

var ErrUnknownProvider = errors.New("unknown provider")

// LoginResult is everything the HTTP layer needs after a successful callback.
type LoginResult struct {
	User   *domain.User
	Tokens *TokenPair
}

// LoginService orchestrates the social login flow: state validation, code
// exchange, profile fetch, account resolution, and token issuance.
type LoginService struct {
	providers map[string]provider.Provider
	users     *UserService
	tokens    *TokenService
	states    StateStore
	avatars   storage.AvatarMirror
	logger    *slog.Logger
}

// NewLoginService wires the orchestrator. avatars may be nil, which disables
// avatar mirroring entirely.
func NewLoginService(providers []provider.Provider, users *UserService, tokens *TokenService, states StateStore, avatars storage.AvatarMirror, logger *slog.Logger) *LoginService {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &LoginService{
		providers: byName,
		users:     users,
		tokens:    tokens,
		states:    states,
		avatars:   avatars,
		logger:    logger,
	}
}

// LoginURL issues a fresh state nonce and returns the provider authorization
// URL carrying it.
func (s *LoginService) LoginURL(ctx context.Context, providerName string) (string, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	state, err := s.states.Issue(ctx)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback completes the login. The state nonce is consumed before any
// provider traffic: a forged or replayed callback never costs an upstream
// round trip and never reaches the user store.
func (s *LoginService) HandleCallback(ctx context.Context, providerName, state, code, userAgent, ip string) (*LoginResult, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}
	if err := s.states.Consume(ctx, state); err != nil {
		observability.RecordAuthLogin(providerName, "invalid_state")
		return nil, err
	}

	token, err := p.Exchange(ctx, code, state)
	if err != nil {
		observability.RecordAuthLogin(providerName, "exchange_failed")
		return nil, err
	}
	profile, err := p.FetchProfile(ctx, token)
	if err != nil {
		observability.RecordAuthLogin(providerName, "profile_failed")
		return nil, err
	}

	s.mirrorAvatar(ctx, providerName, profile)

	user, err := s.users.Resolve(ctx, providerName, profile)
	if err != nil {
		observability.RecordAuthLogin(providerName, "persistence_failed")
		return nil, err
	}
	pair, err := s.tokens.Issue(ctx, user, userAgent, ip)
	if err != nil {
		observability.RecordAuthLogin(providerName, "issuance_failed")
		return nil, err
	}

	observability.RecordAuthLogin(providerName, "success")
	s.logger.InfoContext(ctx, "login completed",
		"provider", providerName,
		"user_id", user.ID,
	)
	return &LoginResult{User: user, Tokens: pair}, nil
}

// mirrorAvatar is best effort: a mirror failure keeps the provider-hosted URL
// and never fails the login.
func (s *LoginService) mirrorAvatar(ctx context.Context, providerName string, profile *provider.Profile) {
	if s.avatars == nil || profile.ProfileImageURL == "" {
		return
	}
	mirrored, err := s.avatars.Mirror(ctx, profile.ProfileImageURL)
	if err != nil {
		observability.RecordAvatarMirror("failed")
		s.logger.WarnContext(ctx, "avatar mirror failed, keeping provider url",
			"provider", providerName,
			"error", err,
		)
		return
	}
	observability.RecordAvatarMirror("success")
	profile.ProfileImageURL = mirrored
}

// Refresh rotates a refresh token into a new pair.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, err := s.tokens.Rotate(ctx, refreshToken, s.users.GetByID)
	if err != nil {
		observability.RecordAuthRefresh("failed")
		return nil, err
	}
	observability.RecordAuthRefresh("success")
	return pair, nil
}

// Logout revokes every session of the user.
func (s *LoginService) Logout(ctx context.Context, userID uint) error {
	revoked, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		observability.RecordAuthLogout("failed")
		return fmt.Errorf("revoke sessions: %w", err)
	}
	observability.RecordAuthLogout("success")
	s.logger.InfoContext(ctx, "logout completed", "user_id", userID, "sessions_revoked", revoked)
	return nil
}
