package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

var fixedNow = time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo *storage.MemoryRepository
	mgr  *QuizManager
	user *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := storage.NewMemoryRepository()
	user := models.NewUser("u1", "u1@example.com", "User One", fixedNow)
	require.NoError(t, repo.CreateUser(context.Background(), user))

	mgr := NewManager(repo, zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	return &fixture{repo: repo, mgr: mgr, user: user}
}

func (f *fixture) addQuestions(t *testing.T, n int, premium bool) []string {
	t.Helper()
	prefix := "q"
	if premium {
		prefix = "p"
	}
	var ids []string
	for i := 0; i < n; i++ {
		q := &models.Question{
			ID:            fmt.Sprintf("%s%d", prefix, i),
			Category:      "general",
			Text:          fmt.Sprintf("Question %d", i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: models.IntPtr(i % 4),
			Explanation:   "because",
			IsPremium:     premium,
		}
		require.NoError(t, f.repo.CreateQuestion(context.Background(), q))
		ids = append(ids, q.ID)
	}
	return ids
}

// startWith persists a session over a known question list
func (f *fixture) startWith(t *testing.T, ids ...string) string {
	t.Helper()
	s := models.NewTestSession("s-"+t.Name(), f.user.ID, ids, fixedNow)
	require.NoError(t, f.repo.CreateSession(context.Background(), s))
	return s.ID
}

func (f *fixture) session(t *testing.T, id string) *models.TestSession {
	t.Helper()
	s, err := f.repo.GetSession(context.Background(), id, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestCreate_DrawsDistinctQuestionsFromPool(t *testing.T) {
	f := newFixture(t)
	pool := f.addQuestions(t, 10, false)

	resp, err := f.mgr.Create(context.Background(), f.user, CreateOptions{Limit: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, resp.TotalQuestions)
	assert.Equal(t, 0, resp.CurrentQuestion)

	s := f.session(t, resp.SessionID)
	require.Len(t, s.QuestionIDs, 4)

	seen := map[string]bool{}
	for _, id := range s.QuestionIDs {
		assert.Contains(t, pool, id)
		assert.False(t, seen[id], "duplicate question %s", id)
		seen[id] = true
	}
	assert.Equal(t, s.QuestionIDs[0], resp.Question.ID)
	assert.Empty(t, s.Answers)
	assert.False(t, s.Completed)
	assert.Equal(t, fixedNow, s.StartedAt)
}

func TestCreate_LimitShrinksToPool(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 3, false)

	resp, err := f.mgr.Create(context.Background(), f.user, CreateOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalQuestions)
}

func TestCreate_DefaultLimit(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 20, false)

	for _, limit := range []int{0, -3} {
		resp, err := f.mgr.Create(context.Background(), f.user, CreateOptions{Limit: limit})
		require.NoError(t, err)
		assert.Equal(t, DefaultLimit, resp.TotalQuestions)
	}
}

func TestCreate_EmptyPool(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Create(context.Background(), f.user, CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Only premium questions exist, which a free user cannot draw.
	f.addQuestions(t, 2, true)
	_, err = f.mgr.Create(context.Background(), f.user, CreateOptions{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCreate_PremiumFiltering(t *testing.T) {
	f := newFixture(t)
	free := f.addQuestions(t, 3, false)
	premium := f.addQuestions(t, 3, true)
	ctx := context.Background()

	resp, err := f.mgr.Create(ctx, f.user, CreateOptions{Limit: 6, PremiumOnly: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, free, f.session(t, resp.SessionID).QuestionIDs, "free users never get premium questions")

	f.user.IsPremium = true
	resp, err = f.mgr.Create(ctx, f.user, CreateOptions{Limit: 6, PremiumOnly: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, premium, f.session(t, resp.SessionID).QuestionIDs)

	resp, err = f.mgr.Create(ctx, f.user, CreateOptions{Limit: 6})
	require.NoError(t, err)
	assert.ElementsMatch(t, append(free, premium...), f.session(t, resp.SessionID).QuestionIDs)
}

func TestCreate_SingleQuestion(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 5, false)

	resp, err := f.mgr.Create(context.Background(), f.user, CreateOptions{QuestionID: "q3"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalQuestions)
	assert.Equal(t, "q3", resp.Question.ID)
	assert.Equal(t, []string{"q3"}, f.session(t, resp.SessionID).QuestionIDs)

	_, err = f.mgr.Create(context.Background(), f.user, CreateOptions{QuestionID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_ViewWithholdsAnswer(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 1, false)

	resp, err := f.mgr.Create(context.Background(), f.user, CreateOptions{})
	require.NoError(t, err)
	assert.Nil(t, resp.Question.CorrectAnswer)
	assert.Empty(t, resp.Question.Explanation)
	assert.Len(t, resp.Question.Options, 4)
}

func TestRecordAnswer_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 2, false)
	id := f.startWith(t, "q0", "q1")
	ctx := context.Background()

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 2))
	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 3))

	resp, err := f.mgr.GetQuestionAt(ctx, id, f.user.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, resp.UserAnswer)
	assert.Equal(t, 3, *resp.UserAnswer)
}

func TestRecordAnswer_NotValidatedAgainstOptions(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 1, false)
	id := f.startWith(t, "q0")

	require.NoError(t, f.mgr.RecordAnswer(context.Background(), id, f.user.ID, "q0", 42))
	assert.Equal(t, 42, f.session(t, id).Answers["q0"])
}

func TestRecordAnswer_OwnershipAndState(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 1, false)
	id := f.startWith(t, "q0")
	ctx := context.Background()

	err := f.mgr.RecordAnswer(ctx, id, "someone-else", "q0", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.mgr.RecordAnswer(ctx, "missing", f.user.ID, "q0", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)

	err = f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGetQuestionAt(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 3, false)
	id := f.startWith(t, "q2", "q0", "q1")
	ctx := context.Background()

	resp, err := f.mgr.GetQuestionAt(ctx, id, f.user.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "q0", resp.Question.ID)
	assert.Equal(t, 3, resp.TotalQuestions)
	assert.Equal(t, 1, resp.CurrentQuestion)
	assert.Nil(t, resp.UserAnswer)
	assert.Nil(t, resp.Question.CorrectAnswer, "unanswered question keeps its answer hidden")

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 1))
	resp, err = f.mgr.GetQuestionAt(ctx, id, f.user.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, resp.UserAnswer)
	assert.Equal(t, 1, *resp.UserAnswer)
	assert.Nil(t, resp.Question.CorrectAnswer, "answered question in an open session keeps its answer hidden")
	assert.Empty(t, resp.Question.Explanation)

	_, err = f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	resp, err = f.mgr.GetQuestionAt(ctx, id, f.user.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, resp.Question.CorrectAnswer)
	assert.Equal(t, 0, *resp.Question.CorrectAnswer)
	assert.Equal(t, "because", resp.Question.Explanation)

	for _, idx := range []int{-1, 3} {
		_, err = f.mgr.GetQuestionAt(ctx, id, f.user.ID, idx)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}

	_, err = f.mgr.GetQuestionAt(ctx, id, "someone-else", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetQuestionAt_OverwriteCannotLearnKey(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 4, false)
	id := f.startWith(t, "q3")
	ctx := context.Background()

	// q3's correct index is 3; a wrong first answer must not expose it.
	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q3", 0))
	resp, err := f.mgr.GetQuestionAt(ctx, id, f.user.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, resp.Question.CorrectAnswer)
	assert.Empty(t, resp.Question.Explanation)

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q3", 2))
	result, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	require.Len(t, result.Questions, 1)
	require.NotNil(t, result.Questions[0].UserAnswer)
	assert.Equal(t, 2, *result.Questions[0].UserAnswer)
}

func TestGetQuestionAt_DeletedQuestion(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 2, false)
	id := f.startWith(t, "q0", "q1")

	_, err := f.repo.DeleteQuestion(context.Background(), "q1")
	require.NoError(t, err)

	_, err = f.mgr.GetQuestionAt(context.Background(), id, f.user.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComplete_ThreeQuestionScenario(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 3, false) // correct answers: q0=0, q1=1, q2=2
	id := f.startWith(t, "q0", "q1", "q2")
	ctx := context.Background()

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0))
	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q1", 3))

	result, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 1, result.CorrectAnswers)
	assert.Equal(t, 3, result.TotalQuestions)
	assert.Equal(t, 33, result.Percentage)
	require.Len(t, result.Questions, 3)
	assert.True(t, result.Questions[0].IsCorrect)
	assert.False(t, result.Questions[1].IsCorrect)
	assert.Nil(t, result.Questions[2].UserAnswer)

	s := f.session(t, id)
	assert.True(t, s.Completed)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, fixedNow, *s.CompletedAt)
	assert.Equal(t, result, s.Result)

	user, err := f.repo.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTests)
	assert.InDelta(t, 33.0, user.AverageScore, 0.001)
	assert.Equal(t, 1, user.XP)
	assert.Equal(t, 1, user.StreakCurrent)

	history, err := f.repo.RecentResults(ctx, f.user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].SessionID)
	assert.Equal(t, "User One", history[0].UserName)
	assert.Equal(t, 33, history[0].Percentage)
}

func TestComplete_SecondCallReturnsCachedResult(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 2, false)
	id := f.startWith(t, "q0", "q1")
	ctx := context.Background()

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0))
	first, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)

	// A question edit after completion must not change the cached result.
	_, err = f.repo.DeleteQuestion(ctx, "q0")
	require.NoError(t, err)

	second, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	user, err := f.repo.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTests)

	history, err := f.repo.RecentResults(ctx, f.user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestComplete_ConcurrentCallsApplyOnce(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 4, false)
	id := f.startWith(t, "q0", "q1", "q2", "q3")
	ctx := context.Background()

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0))
	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q1", 1))

	var wg sync.WaitGroup
	results := make([]*models.ScoringResult, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.mgr.Complete(ctx, id, f.user.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 50, results[i].Percentage)
	}

	user, err := f.repo.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, user.TotalTests)
	assert.Equal(t, 2, user.XP)

	history, err := f.repo.RecentResults(ctx, f.user.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestComplete_WrongOwner(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 1, false)
	id := f.startWith(t, "q0")

	_, err := f.mgr.Complete(context.Background(), id, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, f.session(t, id).Completed)
}

// countingLocker records how often the completion lock is taken
type countingLocker struct {
	mu    sync.Mutex
	calls int
}

func (l *countingLocker) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return func() {}, nil
}

func (l *countingLocker) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestComplete_LockTakenOnlyForOwner(t *testing.T) {
	f := newFixture(t)
	locker := &countingLocker{}
	f.mgr = NewManager(f.repo, zap.NewNop(),
		WithClock(func() time.Time { return fixedNow }),
		WithLocker(locker),
	)
	f.addQuestions(t, 1, false)
	id := f.startWith(t, "q0")
	ctx := context.Background()

	_, err := f.mgr.Complete(ctx, id, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.mgr.Complete(ctx, "missing", f.user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, locker.count())

	_, err = f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.count())

	// Already completed sessions are served from the cache without locking.
	_, err = f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.count())
}

func TestComplete_DeletedQuestionStillCounts(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 2, false)
	id := f.startWith(t, "q0", "q1")
	ctx := context.Background()

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0))
	_, err := f.repo.DeleteQuestion(ctx, "q1")
	require.NoError(t, err)

	result, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, 50, result.Percentage)
	assert.Len(t, result.Questions, 1)
}

func TestResult_OnDemandIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 2, false)
	id := f.startWith(t, "q0", "q1")
	ctx := context.Background()

	before, err := f.mgr.Result(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Score)

	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q0", 0))
	require.NoError(t, f.mgr.RecordAnswer(ctx, id, f.user.ID, "q1", 1))

	after, err := f.mgr.Result(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, after.Percentage)

	s := f.session(t, id)
	assert.False(t, s.Completed)
	assert.Nil(t, s.Result)

	user, err := f.repo.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.TotalTests)
}

func TestResult_CompletedReturnsCache(t *testing.T) {
	f := newFixture(t)
	f.addQuestions(t, 1, false)
	id := f.startWith(t, "q0")
	ctx := context.Background()

	done, err := f.mgr.Complete(ctx, id, f.user.ID)
	require.NoError(t, err)

	got, err := f.mgr.Result(ctx, id, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, done, got)

	_, err = f.mgr.Result(ctx, id, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}
