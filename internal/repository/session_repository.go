package repository

import (
	"context"
	"errors"
	"time"

	"social-login-service/internal/domain"
	"social-login-service/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByTokenHash(ctx context.Context, hash string, userID uint) (*domain.Session, error)
	// ReplaceToken swaps the stored token value in place, keyed by the old
	// hash and the owning user. It reports false when no live row matched,
	// which is how concurrent rotations on the same stale token are
	// linearized: the conditional update succeeds for exactly one caller.
	ReplaceToken(ctx context.Context, oldHash string, userID uint, newHash, newTokenID string, issuedAt, expiresAt time.Time) (bool, error)
	ListByUserID(ctx context.Context, userID uint) ([]domain.Session, error)
	DeleteByID(ctx context.Context, id, userID uint) error
	DeleteByUserID(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByTokenHash(ctx context.Context, hash string, userID uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("token_hash = ? AND user_id = ?", hash, userID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_token_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_token_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_token_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) ReplaceToken(ctx context.Context, oldHash string, userID uint, newHash, newTokenID string, issuedAt, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("token_hash = ? AND user_id = ?", oldHash, userID).
		Updates(map[string]any{
			"token_hash": newHash,
			"token_id":   newTokenID,
			"issued_at":  issuedAt,
			"expires_at": expiresAt,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "replace_token", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "replace_token", "not_found")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "session", "replace_token", "success")
	return true, nil
}

func (r *GormSessionRepository) ListByUserID(ctx context.Context, userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_by_user_id", "success")
	return sessions, nil
}

func (r *GormSessionRepository) DeleteByID(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_by_id", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "delete_by_id", "not_found")
		return ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_by_id", "success")
	return nil
}

func (r *GormSessionRepository) DeleteByUserID(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "success")
	return res.RowsAffected, nil
}
