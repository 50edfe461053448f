// Package session runs the test-session lifecycle: drawing questions,
// recording answers, serving questions by index and completing a session
// exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/gamification"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/scoring"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

// Common errors
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidArgument = errors.New("invalid argument")
)

// DefaultLimit is the number of questions drawn when no limit is given
const DefaultLimit = 8

// Manager defines the test-session operations
type Manager interface {
	Create(ctx context.Context, user *models.User, opts CreateOptions) (*models.StartTestResponse, error)
	RecordAnswer(ctx context.Context, sessionID, userID, questionID string, selected int) error
	GetQuestionAt(ctx context.Context, sessionID, userID string, index int) (*models.QuestionResponse, error)
	Complete(ctx context.Context, sessionID, userID string) (*models.ScoringResult, error)
	Result(ctx context.Context, sessionID, userID string) (*models.ScoringResult, error)
}

// CreateOptions holds optional parameters for session creation
type CreateOptions struct {
	// Limit caps the number of questions; zero or negative means the default
	Limit       int
	PremiumOnly bool
	// QuestionID starts a single-question session for that question
	QuestionID string
}

// Option configures a QuizManager
type Option func(*QuizManager)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *QuizManager) { m.now = now }
}

// WithRand overrides the random source used for sampling
func WithRand(rng *rand.Rand) Option {
	return func(m *QuizManager) { m.rng = rng }
}

// WithLocker overrides the completion lock
func WithLocker(l Locker) Option {
	return func(m *QuizManager) { m.locker = l }
}

// WithDefaultLimit sets the question count used when a request has none
func WithDefaultLimit(n int) Option {
	return func(m *QuizManager) {
		if n > 0 {
			m.defaultLimit = n
		}
	}
}

// QuizManager implements Manager on top of a storage.Repository
type QuizManager struct {
	repo         storage.Repository
	log          *zap.Logger
	locker       Locker
	now          func() time.Time
	defaultLimit int

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewManager creates a QuizManager with an in-process locker, the wall clock
// and a randomly seeded source unless overridden.
func NewManager(repo storage.Repository, log *zap.Logger, opts ...Option) *QuizManager {
	m := &QuizManager{
		repo:         repo,
		log:          log,
		locker:       NewLocalLocker(),
		now:          time.Now,
		defaultLimit: DefaultLimit,
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create draws questions for the user and persists a new session
func (m *QuizManager) Create(ctx context.Context, user *models.User, opts CreateOptions) (*models.StartTestResponse, error) {
	var selected []*models.Question

	if opts.QuestionID != "" {
		q, err := m.repo.GetQuestion(ctx, opts.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get question: %w", err)
		}
		if q == nil {
			return nil, fmt.Errorf("question %s: %w", opts.QuestionID, ErrNotFound)
		}
		selected = []*models.Question{q}
	} else {
		pool, err := m.repo.ListQuestions(ctx, poolFilter(user, opts.PremiumOnly))
		if err != nil {
			return nil, fmt.Errorf("failed to list questions: %w", err)
		}
		if len(pool) == 0 {
			return nil, fmt.Errorf("no questions available: %w", ErrInvalidState)
		}
		selected = m.sample(pool, m.limitFor(opts.Limit))
	}

	ids := make([]string, len(selected))
	for i, q := range selected {
		ids[i] = q.ID
	}

	s := models.NewTestSession(uuid.NewString(), user.ID, ids, m.now().UTC())
	if err := m.repo.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.log.Info("test session started",
		zap.String("session_id", s.ID),
		zap.String("user_id", user.ID),
		zap.Int("questions", len(ids)),
	)

	return &models.StartTestResponse{
		SessionID:       s.ID,
		TotalQuestions:  len(ids),
		CurrentQuestion: 0,
		Question:        selected[0].View(false),
	}, nil
}

func poolFilter(user *models.User, premiumOnly bool) models.QuestionFilter {
	switch {
	case !user.IsPremium:
		return models.FilterExcludePremium
	case premiumOnly:
		return models.FilterPremiumOnly
	default:
		return models.FilterNone
	}
}

func (m *QuizManager) limitFor(requested int) int {
	if requested <= 0 {
		return m.defaultLimit
	}
	return requested
}

// sample draws min(n, len(pool)) distinct questions uniformly at random
func (m *QuizManager) sample(pool []*models.Question, n int) []*models.Question {
	n = max(1, min(n, len(pool)))

	m.rngMu.Lock()
	perm := m.rng.Perm(len(pool))
	m.rngMu.Unlock()

	out := make([]*models.Question, n)
	for i := range out {
		out[i] = pool[perm[i]]
	}
	return out
}

// RecordAnswer upserts the answer for one question. The index is stored as
// given; later answers overwrite earlier ones.
func (m *QuizManager) RecordAnswer(ctx context.Context, sessionID, userID, questionID string, selected int) error {
	s, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if s.Completed {
		return fmt.Errorf("session %s is completed: %w", sessionID, ErrInvalidState)
	}

	err = m.repo.SetAnswer(ctx, sessionID, userID, questionID, selected)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	case errors.Is(err, storage.ErrAlreadyCompleted):
		return fmt.Errorf("session %s is completed: %w", sessionID, ErrInvalidState)
	case err != nil:
		return fmt.Errorf("failed to save answer: %w", err)
	}

	m.log.Debug("answer recorded",
		zap.String("session_id", sessionID),
		zap.String("question_id", questionID),
		zap.Int("selected", selected),
	)
	return nil
}

// GetQuestionAt returns the question at index in the session's fixed order
func (m *QuizManager) GetQuestionAt(ctx context.Context, sessionID, userID string, index int) (*models.QuestionResponse, error) {
	s, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	ids := s.ScoredQuestionIDs()
	if index < 0 || index >= len(ids) {
		return nil, fmt.Errorf("question index %d out of range [0,%d): %w", index, len(ids), ErrInvalidArgument)
	}

	q, err := m.repo.GetQuestion(ctx, ids[index])
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	if q == nil {
		return nil, fmt.Errorf("question %s: %w", ids[index], ErrNotFound)
	}

	// Answers stay writable until completion, so the key is shown only then.
	return &models.QuestionResponse{
		SessionID:       s.ID,
		TotalQuestions:  s.TotalQuestions(),
		CurrentQuestion: index,
		Question:        q.View(s.Completed),
		UserAnswer:      s.Answer(q.ID),
	}, nil
}

// Complete scores the session and applies its side effects once. Repeated
// or concurrent calls return the cached result of the first completion.
func (m *QuizManager) Complete(ctx context.Context, sessionID, userID string) (*models.ScoringResult, error) {
	s, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return m.cachedResult(ctx, s)
	}

	unlock, err := m.locker.Lock(ctx, "session:"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	defer unlock()

	// Reload under the lock; a concurrent caller may have finished first.
	s, err = m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return m.cachedResult(ctx, s)
	}

	result, err := scoring.Compute(ctx, s, m.repo)
	if err != nil {
		return nil, fmt.Errorf("failed to score session: %w", err)
	}

	completedAt := m.now().UTC()
	err = m.repo.CompleteSession(ctx, sessionID, result, completedAt, func(prev models.UserAggregate) models.UserAggregate {
		return gamification.Apply(prev, result, completedAt)
	})
	switch {
	case errors.Is(err, storage.ErrAlreadyCompleted):
		// Another instance won the transition.
		winner, err := m.load(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		return m.cachedResult(ctx, winner)
	case errors.Is(err, storage.ErrSessionNotFound):
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to complete session: %w", err)
	}

	m.appendHistory(ctx, s, result, completedAt)

	m.log.Info("test session completed",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.Int("score", result.Score),
		zap.Int("total", result.TotalQuestions),
		zap.Int("percentage", result.Percentage),
	)

	return result, nil
}

// appendHistory records the result in the history store. Failures are
// logged only; the session is already completed.
func (m *QuizManager) appendHistory(ctx context.Context, s *models.TestSession, result *models.ScoringResult, at time.Time) {
	user, err := m.repo.GetUser(ctx, s.UserID)
	if err != nil {
		m.log.Warn("failed to load user for history", zap.String("user_id", s.UserID), zap.Error(err))
	}

	tr := models.NewTestResult(uuid.NewString(), s, user, result, at)
	if err := m.repo.AppendResult(ctx, tr); err != nil {
		m.log.Warn("failed to append test result",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	}
}

// Result returns the cached result of a completed session, or scores an
// incomplete one on demand without storing anything.
func (m *QuizManager) Result(ctx context.Context, sessionID, userID string) (*models.ScoringResult, error) {
	s, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if s.Completed {
		return m.cachedResult(ctx, s)
	}

	result, err := scoring.Compute(ctx, s, m.repo)
	if err != nil {
		return nil, fmt.Errorf("failed to score session: %w", err)
	}
	return result, nil
}

// cachedResult returns the stored result of a completed session. Sessions
// completed before results were cached are rescored without persisting.
func (m *QuizManager) cachedResult(ctx context.Context, s *models.TestSession) (*models.ScoringResult, error) {
	if s.Result != nil {
		return s.Result, nil
	}
	result, err := scoring.Compute(ctx, s, m.repo)
	if err != nil {
		return nil, fmt.Errorf("failed to score session: %w", err)
	}
	return result, nil
}

func (m *QuizManager) load(ctx context.Context, sessionID, userID string) (*models.TestSession, error) {
	s, err := m.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return s, nil
}
