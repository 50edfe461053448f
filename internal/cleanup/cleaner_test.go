package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

func TestPrune_RemovesOnlyStaleIncompleteSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := storage.NewMemoryRepository()

	stale := models.NewTestSession("stale", "u1", []string{"q1"}, now.Add(-48*time.Hour))
	fresh := models.NewTestSession("fresh", "u1", []string{"q1"}, now.Add(-time.Hour))
	done := models.NewTestSession("done", "u1", []string{"q1"}, now.Add(-72*time.Hour))
	for _, s := range []*models.TestSession{stale, fresh, done} {
		require.NoError(t, repo.CreateSession(ctx, s))
	}
	require.NoError(t, repo.CompleteSession(ctx, "done", &models.ScoringResult{TotalQuestions: 1}, now.Add(-71*time.Hour), nil))

	c := NewCleaner(repo, time.Minute, 24*time.Hour, zap.NewNop())
	c.now = func() time.Time { return now }

	assert.Equal(t, int64(1), c.Prune(ctx))

	for id, want := range map[string]bool{"stale": false, "fresh": true, "done": true} {
		s, err := repo.GetSession(ctx, id, "u1")
		require.NoError(t, err)
		assert.Equal(t, want, s != nil, id)
	}
}

type failingStore struct{}

func (failingStore) DeleteStaleSessions(context.Context, time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestPrune_StoreError(t *testing.T) {
	c := NewCleaner(failingStore{}, 0, 0, zap.NewNop())
	assert.Equal(t, int64(0), c.Prune(context.Background()))
	assert.Equal(t, 15*time.Minute, c.interval)
	assert.Equal(t, 24*time.Hour, c.maxAge)
}
