package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"physioheal/internal/domain"
	"physioheal/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository uses primary until it errors, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the call should go to primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	if time.Since(last) > recoveryInterval {
		r.lastCheck.Store(time.Now().UnixNano())
		return true
	}
	return false
}

// callerGone reports errors caused by the caller's context rather than by primary.
func callerGone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// observe updates the health flag. Cancelled or timed out calls say nothing
// about primary and leave the flag alone.
func (r *FailoverStateRepository) observe(op string, err error) {
	if callerGone(err) {
		return
	}
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Str("op", op).Msg("Primary state repository recovered")
		}
		return
	}
	if !r.isDown.Load() {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) GetState(ctx context.Context, sessionID string) (*models.WizardState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, sessionID)
		r.observe("get", err)
		if err == nil || callerGone(err) {
			return state, err
		}
	}
	return r.fallback.GetState(ctx, sessionID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.WizardState) error {
	if r.usePrimary() {
		err := r.primary.SetState(ctx, state)
		r.observe("set", err)
		if err == nil || callerGone(err) {
			return err
		}
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, sessionID string) error {
	// Сессия могла быть записана в любое из хранилищ
	_ = r.fallback.ClearState(ctx, sessionID)

	if r.usePrimary() {
		err := r.primary.ClearState(ctx, sessionID)
		r.observe("clear", err)
	}
	return nil
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.observe("rate_limit", err)
		if err == nil || callerGone(err) {
			return allowed, err
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
