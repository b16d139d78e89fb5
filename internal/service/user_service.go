package service

import (
	"context"
	"errors"
	"fmt"

	"social-login-service/internal/domain"
	"social-login-service/internal/provider"
	"social-login-service/internal/repository"
)

var ErrUserNotFound = errors.New("user not found")

// UserService resolves provider profiles to local user accounts.
type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Resolve finds or creates the account keyed by (provider, external id) and
// refreshes its display fields from the profile. The upsert is a single
// atomic statement, so two concurrent first logins converge on one account.
func (s *UserService) Resolve(ctx context.Context, providerName string, profile *provider.Profile) (*domain.User, error) {
	user, err := s.userRepo.Upsert(ctx, &domain.User{
		Provider:        providerName,
		SocialID:        profile.ExternalID,
		Nickname:        profile.Nickname,
		ProfileImageURL: profile.ProfileImageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
