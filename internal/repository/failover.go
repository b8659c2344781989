package repository

import (
	"context"
	"sync/atomic"
	"time"

	"postovik/internal/domain"
	"postovik/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStatusRepository serves from primary (redis) until it errors,
// then from the in-memory fallback, probing the primary again once a
// minute on the read path.
type FailoverStatusRepository struct {
	primary   domain.StatusRepository
	fallback  domain.StatusRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nano
}

func NewFailoverStatusRepository(primary, fallback domain.StatusRepository, logger *zerolog.Logger) *FailoverStatusRepository {
	return &FailoverStatusRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStatusRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary status repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStatusRepository) LoadStatus(ctx context.Context) (*models.WatchStatus, error) {
	if !r.isDown.Load() {
		status, err := r.primary.LoadStatus(ctx)
		if err == nil {
			return status, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute {
		status, err := r.primary.LoadStatus(ctx)
		if err == nil {
			r.isDown.Store(false)
			return status, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.LoadStatus(ctx)
}

func (r *FailoverStatusRepository) SaveStatus(ctx context.Context, status *models.WatchStatus) error {
	if !r.isDown.Load() {
		err := r.primary.SaveStatus(ctx, status)
		if err == nil {
			// Keep the fallback warm so a later failover still has data.
			_ = r.fallback.SaveStatus(ctx, status)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SaveStatus(ctx, status)
}

func (r *FailoverStatusRepository) ClearStatus(ctx context.Context) error {
	if !r.isDown.Load() {
		err := r.primary.ClearStatus(ctx)
		if err == nil {
			_ = r.fallback.ClearStatus(ctx)
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearStatus(ctx)
}
