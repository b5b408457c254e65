package service

import (
	"context"
	"time"

	"physioheal/internal/domain"
	"physioheal/internal/models"

	"github.com/rs/zerolog"
)

// StateService wraps session storage and the shared rate limiter.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

// GetSession returns ErrSessionNotFound for unknown or expired sessions.
func (s *StateService) GetSession(ctx context.Context, sessionID string) (*models.WizardState, error) {
	state, err := s.stateRepo.GetState(ctx, sessionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to get session state")
		return nil, err
	}
	if state == nil {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

func (s *StateService) SaveSession(ctx context.Context, state *models.WizardState) error {
	if err := s.stateRepo.SetState(ctx, state); err != nil {
		s.logger.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to save session state")
		return err
	}
	return nil
}

func (s *StateService) ClearSession(ctx context.Context, sessionID string) error {
	return s.stateRepo.ClearState(ctx, sessionID)
}

func (s *StateService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, key, limit, window)
}
