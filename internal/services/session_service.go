package services

import (
	"context"
	"log/slog"

	"github.com/palletline/gatehouse/internal/models"
)

// SessionStateCache is the optional fast path for revocation checks.
// Implemented by the redis-backed cache; nil disables caching.
type SessionStateCache interface {
	SetState(ctx context.Context, tokenID string, active bool) error
	GetState(ctx context.Context, tokenID string) (active bool, found bool, err error)
}

// SessionStore is the single source of truth for token revocation.
// Writes go to Postgres first, then best-effort to the cache; reads try
// the cache and fall through to Postgres on a miss.
type SessionStore struct {
	repo   SessionRepository
	cache  SessionStateCache
	logger *slog.Logger
}

func NewSessionStore(repo SessionRepository, cache SessionStateCache, logger *slog.Logger) *SessionStore {
	return &SessionStore{repo: repo, cache: cache, logger: logger}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	if err := s.repo.Create(ctx, session); err != nil {
		return err
	}

	s.cacheState(ctx, session.TokenID, true)
	return nil
}

// IsActive answers the revocation question for a token id. Unknown token
// ids are inactive.
func (s *SessionStore) IsActive(ctx context.Context, tokenID string) (bool, error) {
	if s.cache != nil {
		active, found, err := s.cache.GetState(ctx, tokenID)
		if err != nil {
			s.logger.Warn("session cache read failed, falling back to store", "error", err)
		} else if found {
			return active, nil
		}
	}

	active, err := s.repo.IsActive(ctx, tokenID)
	if err != nil {
		return false, err
	}

	s.cacheState(ctx, tokenID, active)
	return active, nil
}

// MarkInactive revokes one session. Idempotent.
func (s *SessionStore) MarkInactive(ctx context.Context, tokenID string) error {
	if err := s.repo.MarkInactive(ctx, tokenID); err != nil {
		return err
	}

	s.cacheState(ctx, tokenID, false)
	return nil
}

// InvalidateAll revokes every active session for the account.
func (s *SessionStore) InvalidateAll(ctx context.Context, accountID string) (int, error) {
	tokenIDs, err := s.repo.InvalidateAll(ctx, accountID)
	if err != nil {
		return 0, err
	}

	for _, tokenID := range tokenIDs {
		s.cacheState(ctx, tokenID, false)
	}

	return len(tokenIDs), nil
}

func (s *SessionStore) GetByTokenID(ctx context.Context, tokenID string) (*models.Session, error) {
	return s.repo.GetByTokenID(ctx, tokenID)
}

func (s *SessionStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.Session, error) {
	return s.repo.ListByAccount(ctx, accountID, limit)
}

// cacheState is best effort. The database answer is always authoritative;
// a failed cache write costs a database read later, nothing more.
func (s *SessionStore) cacheState(ctx context.Context, tokenID string, active bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetState(ctx, tokenID, active); err != nil {
		s.logger.Warn("session cache write failed", "error", err)
	}
}
