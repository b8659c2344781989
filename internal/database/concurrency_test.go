package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"postovik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Several dispatch loops racing for the same due job must hand it to
// exactly one of them.
func TestConcurrentJobClaim(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.CreateJob(ctx, &models.Job{
		ID:      "contested",
		Kind:    models.KindOneShotEmail,
		Status:  models.StatusPending,
		FireAt:  now.Add(-time.Minute),
		Payload: "{}",
	}))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.MarkJobRunning(ctx, "contested", time.Now())
		}()
	}

	wg.Wait()
	close(results)

	claimed := 0
	lost := 0
	for err := range results {
		switch {
		case err == nil:
			claimed++
		case errors.Is(err, models.ErrJobNotFound):
			lost++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}

	assert.Equal(t, 1, claimed, "exactly one claimer should win")
	assert.Equal(t, numGoroutines-1, lost)

	got, err := db.GetJob(ctx, "contested")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
}
