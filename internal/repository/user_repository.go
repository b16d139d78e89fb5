package repository

import (
	"context"
	"errors"

	"social-login-service/internal/domain"
	"social-login-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error)
	// Upsert inserts the user or, when the (provider, social_id) pair already
	// exists, refreshes nickname and profile image in place. The returned row
	// is the canonical one, so concurrent duplicate callbacks converge on a
	// single user ID.
	Upsert(ctx context.Context, user *domain.User) (*domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindBySocial(ctx context.Context, provider, socialID string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("provider = ? AND social_id = ?", provider, socialID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_social", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_social", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_social", "success")
	return &u, nil
}

func (r *GormUserRepository) Upsert(ctx context.Context, user *domain.User) (*domain.User, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "social_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "profile_image_url", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "upsert", "error")
		return nil, err
	}
	// re-read so the conflict path also yields the stored row with its ID
	stored, err := r.FindBySocial(ctx, user.Provider, user.SocialID)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "upsert", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "upsert", "success")
	return stored, nil
}
