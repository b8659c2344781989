package repository

import (
	"context"
	"testing"
	"time"

	"postovik/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStatusRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisStatusRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndLoadStatus", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		status := &models.WatchStatus{
			IsMonitoringActive:       true,
			LastCheckAt:              &now,
			LastProcessedImageName:   "photo.png",
			LastProcessedImageStatus: models.WatchImageProcessed,
			CurrentConfig: &models.WatchPayload{
				TriggerFolderID: "folder-1",
				IntervalMinutes: 5,
				Enabled:         true,
			},
		}

		err := repo.SaveStatus(ctx, status)
		require.NoError(t, err)

		got, err := repo.LoadStatus(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.IsMonitoringActive)
		assert.Equal(t, "photo.png", got.LastProcessedImageName)
		assert.Equal(t, models.WatchImageProcessed, got.LastProcessedImageStatus)
		require.NotNil(t, got.CurrentConfig)
		assert.Equal(t, "folder-1", got.CurrentConfig.TriggerFolderID)
		require.NotNil(t, got.LastCheckAt)
		assert.True(t, got.LastCheckAt.Equal(now))
	})

	t.Run("LoadMissingStatus", func(t *testing.T) {
		require.NoError(t, repo.ClearStatus(ctx))
		got, err := repo.LoadStatus(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearStatus", func(t *testing.T) {
		repo.SaveStatus(ctx, &models.WatchStatus{IsMonitoringActive: true})

		err := repo.ClearStatus(ctx)
		require.NoError(t, err)

		got, _ := repo.LoadStatus(ctx)
		assert.Nil(t, got)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		short := NewRedisStatusRepository(client, time.Minute)
		require.NoError(t, short.SaveStatus(ctx, &models.WatchStatus{IsMonitoringActive: true}))

		s.FastForward(time.Minute + time.Second)

		got, err := short.LoadStatus(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStatusRepository(nil, time.Hour)
		_, err := repo.LoadStatus(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		err := Ping(ctx, client)
		assert.NoError(t, err)
	})

	t.Run("Close", func(t *testing.T) {
		err := Close(client)
		assert.NoError(t, err)
	})
}
