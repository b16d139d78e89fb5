package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-login-service/internal/domain"
	"social-login-service/internal/repository"
	"social-login-service/internal/security"
)

var (
	// ErrSessionNotFound means a refresh token verified cryptographically but
	// has no live session record: it was rotated away, revoked, or never
	// issued by this service. A signature alone never authorizes a rotation.
	ErrSessionNotFound = errors.New("session not found")
)

// TokenService owns the issuance/rotation state machine for session
// credentials. Access tokens are stateless; refresh tokens exist only while a
// matching session record does.
type TokenService struct {
	jwtMgr      *security.JWTManager
	sessionRepo repository.SessionRepository
	pepper      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, sessionRepo repository.SessionRepository, pepper string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, sessionRepo: sessionRepo, pepper: pepper, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type TokenPair struct {
	UserID           uint
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// IssueAccess mints a stateless access token. Pure apart from the clock: no
// store writes, no failure modes beyond signing itself.
func (s *TokenService) IssueAccess(user *domain.User) (string, time.Time, error) {
	token, err := s.jwtMgr.SignAccessToken(user.ID, user.Nickname, s.accessTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	exp, err := security.ExpiryOf(token)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Issue mints an access/refresh pair and persists the session record for the
// refresh token. If the store write fails the signed refresh token is
// discarded and never returned: issuance is all-or-nothing.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, ua, ip string) (*TokenPair, error) {
	access, refresh, refreshClaims, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}
	session := &domain.Session{
		UserID:    user.ID,
		TokenHash: security.HashRefreshToken(refresh, s.pepper),
		TokenID:   refreshClaims.ID,
		UserAgent: ua,
		IP:        ip,
		IssuedAt:  refreshClaims.IssuedAt.Time,
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return &TokenPair{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  time.Now().Add(s.accessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

// Rotate exchanges a live refresh token for a fresh pair. The stored token
// value is replaced in place via a conditional update keyed on the old hash,
// so two concurrent rotations of the same stale token resolve to exactly one
// winner; the loser observes ErrSessionNotFound.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string, fetchUser func(ctx context.Context, id uint) (*domain.User, error)) (*TokenPair, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	oldHash := security.HashRefreshToken(refreshToken, s.pepper)
	if _, err := s.sessionRepo.FindByTokenHash(ctx, oldHash, userID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	user, err := fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	access, refresh, refreshClaims, err := s.mintPair(user)
	if err != nil {
		return nil, err
	}
	newHash := security.HashRefreshToken(refresh, s.pepper)
	replaced, err := s.sessionRepo.ReplaceToken(ctx, oldHash, userID, newHash, refreshClaims.ID, refreshClaims.IssuedAt.Time, refreshClaims.ExpiresAt.Time)
	if err != nil {
		return nil, fmt.Errorf("replace session token: %w", err)
	}
	if !replaced {
		return nil, ErrSessionNotFound
	}
	return &TokenPair{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  time.Now().Add(s.accessTTL),
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (s *TokenService) VerifyAccess(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseAccessToken(raw)
}

func (s *TokenService) VerifyRefresh(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseRefreshToken(raw)
}

// RevokeAll deletes every session record for the user; outstanding refresh
// tokens become unusable regardless of their remaining JWT lifetime.
func (s *TokenService) RevokeAll(ctx context.Context, userID uint) (int64, error) {
	return s.sessionRepo.DeleteByUserID(ctx, userID)
}

// mintPair signs the refresh token first and gives the access token the same
// jti, so an access token can be traced back to its session record.
func (s *TokenService) mintPair(user *domain.User) (access, refresh string, refreshClaims *security.Claims, err error) {
	refresh, err = s.jwtMgr.SignRefreshToken(user.ID, user.Nickname, s.refreshTTL)
	if err != nil {
		return "", "", nil, fmt.Errorf("sign refresh token: %w", err)
	}
	refreshClaims, err = s.jwtMgr.ParseRefreshToken(refresh)
	if err != nil {
		return "", "", nil, err
	}
	access, err = s.jwtMgr.SignAccessTokenWithJTI(user.ID, user.Nickname, s.accessTTL, refreshClaims.ID)
	if err != nil {
		return "", "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return access, refresh, refreshClaims, nil
}
