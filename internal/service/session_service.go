package service

import (
	"context"
	"errors"
	"time"

	"social-login-service/internal/repository"
)

// SessionView is the user-facing shape of a session record. Token hashes
// never leave the service layer.
type SessionView struct {
	ID        uint      `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

type SessionService struct {
	sessionRepo repository.SessionRepository
}

func NewSessionService(sessionRepo repository.SessionRepository) *SessionService {
	return &SessionService{sessionRepo: sessionRepo}
}

// List returns the user's live sessions. currentTokenID is the jti of the
// caller's access token; the matching session is flagged as current.
func (s *SessionService) List(ctx context.Context, userID uint, currentTokenID string) ([]SessionView, error) {
	sessions, err := s.sessionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, SessionView{
			ID:        sess.ID,
			UserAgent: sess.UserAgent,
			IP:        sess.IP,
			IssuedAt:  sess.IssuedAt,
			ExpiresAt: sess.ExpiresAt,
			Current:   sess.TokenID == currentTokenID,
		})
	}
	return views, nil
}

// Revoke deletes one session by ID, scoped to the owning user so one user
// cannot revoke another's session.
func (s *SessionService) Revoke(ctx context.Context, sessionID, userID uint) error {
	err := s.sessionRepo.DeleteByID(ctx, sessionID, userID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// PurgeExpired removes session rows whose refresh tokens can no longer
// verify anyway. Run periodically from the server process.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.sessionRepo.DeleteExpired(ctx)
}
