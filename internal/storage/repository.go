package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/quiz-engine/internal/models"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAlreadyCompleted = errors.New("session already completed")
	ErrEmailTaken       = errors.New("email already registered")
	ErrUserNotFound     = errors.New("user not found")
)

// AggregateFunc computes a user's new aggregate from the stored one
type AggregateFunc func(prev models.UserAggregate) models.UserAggregate

// QuestionStore holds the question pool.
// GetQuestion returns (nil, nil) when the question does not exist.
type QuestionStore interface {
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	ListQuestions(ctx context.Context, filter models.QuestionFilter) ([]*models.Question, error)
	CreateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id string) (bool, error)
	CountQuestions(ctx context.Context) (int, error)
}

// UserStore holds accounts and their aggregate stats
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.User, error)
	ListNotifiableUsers(ctx context.Context) ([]*models.User, error)
	SetPremium(ctx context.Context, id string, premium bool) error
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error

	// ListUsers returns accounts newest first; a non-positive limit means all.
	ListUsers(ctx context.Context, limit int) ([]*models.User, error)
	CountUsers(ctx context.Context) (int, error)

	// DeleteUser removes an account together with its sessions, results
	// and notifications, reporting whether it existed.
	DeleteUser(ctx context.Context, id string) (bool, error)
}

// SessionStore holds test sessions. Lookups are scoped to the owner:
// a session owned by someone else is reported exactly like a missing one.
type SessionStore interface {
	CreateSession(ctx context.Context, s *models.TestSession) error
	GetSession(ctx context.Context, id, userID string) (*models.TestSession, error)
	SetAnswer(ctx context.Context, id, userID, questionID string, selected int) error

	// CompleteSession flips completed from false to true, caches the result
	// and applies update to the owner's aggregate, atomically where the
	// backend allows it. It returns ErrAlreadyCompleted when another caller
	// won the transition; update is then not applied.
	CompleteSession(ctx context.Context, id string, result *models.ScoringResult, completedAt time.Time, update AggregateFunc) error

	DeleteStaleSessions(ctx context.Context, startedBefore time.Time) (int64, error)
}

// ResultStore is the append-only test history
type ResultStore interface {
	AppendResult(ctx context.Context, r *models.TestResult) error
	RecentResults(ctx context.Context, userID string, limit int) ([]*models.TestResult, error)
	CountResultsSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountResults(ctx context.Context) (int, error)
}

// NotificationStore holds per-user notifications
type NotificationStore interface {
	CreateNotifications(ctx context.Context, ns []*models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (bool, error)
}

// ClientStore resolves admin API keys
type ClientStore interface {
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error
}

// Repository bundles every store behind one backend
type Repository interface {
	QuestionStore
	UserStore
	SessionStore
	ResultStore
	NotificationStore
	ClientStore

	// Health
	Ping(ctx context.Context) error
	Close() error
}
