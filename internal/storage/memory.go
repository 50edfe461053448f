package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// MemoryRepository implements Repository in process memory.
// Used for local development and tests; everything is lost on restart.
type MemoryRepository struct {
	mu            sync.RWMutex
	questions     map[string]*models.Question
	questionOrder []string
	users         map[string]*models.User
	sessions      map[string]*models.TestSession
	results       []*models.TestResult
	notifications []*models.Notification
	clients       map[string]*models.ApiClient
}

// NewMemoryRepository creates an empty in-memory repository with the given admin clients
func NewMemoryRepository(clients ...*models.ApiClient) *MemoryRepository {
	r := &MemoryRepository{
		questions: make(map[string]*models.Question),
		users:     make(map[string]*models.User),
		sessions:  make(map[string]*models.TestSession),
		clients:   make(map[string]*models.ApiClient),
	}
	for _, c := range clients {
		cc := *c
		r.clients[c.ApiKey] = &cc
	}
	return r
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryRepository) Close() error { return nil }

// --- Questions ---

func (r *MemoryRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, nil
	}
	return copyQuestion(q), nil
}

func (r *MemoryRepository) ListQuestions(ctx context.Context, filter models.QuestionFilter) ([]*models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Question, 0, len(r.questionOrder))
	for _, id := range r.questionOrder {
		q := r.questions[id]
		if filter.Matches(q) {
			out = append(out, copyQuestion(q))
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateQuestion(ctx context.Context, q *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.questions[q.ID]; !exists {
		r.questionOrder = append(r.questionOrder, q.ID)
	}
	r.questions[q.ID] = copyQuestion(q)
	return nil
}

func (r *MemoryRepository) DeleteQuestion(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.questions[id]; !ok {
		return false, nil
	}
	delete(r.questions, id)
	for i, qid := range r.questionOrder {
		if qid == id {
			r.questionOrder = append(r.questionOrder[:i], r.questionOrder[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *MemoryRepository) CountQuestions(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.questions), nil
}

// --- Users ---

func (r *MemoryRepository) CreateUser(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	r.users[u.ID] = copyUser(u)
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Leaderboard(ctx context.Context, limit int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.User
	for _, u := range r.users {
		if u.TotalTests > 0 {
			out = append(out, copyUser(u))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AverageScore != out[j].AverageScore {
			return out[i].AverageScore > out[j].AverageScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListNotifiableUsers(ctx context.Context) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.User
	for _, u := range r.users {
		if u.NotifyNewQuestions {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) SetPremium(ctx context.Context, id string, premium bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsPremium = premium
	return nil
}

func (r *MemoryRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	update.Apply(u)
	return nil
}

func (r *MemoryRepository) ListUsers(ctx context.Context, limit int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) CountUsers(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

func (r *MemoryRepository) DeleteUser(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return false, nil
	}
	delete(r.users, id)

	for sid, s := range r.sessions {
		if s.UserID == id {
			delete(r.sessions, sid)
		}
	}
	r.results = slices.DeleteFunc(r.results, func(tr *models.TestResult) bool { return tr.UserID == id })
	r.notifications = slices.DeleteFunc(r.notifications, func(n *models.Notification) bool { return n.UserID == id })
	return true, nil
}

// --- Sessions ---

func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.TestSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemoryRepository) GetSession(ctx context.Context, id, userID string) (*models.TestSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	return s.Clone(), nil
}

func (r *MemoryRepository) SetAnswer(ctx context.Context, id, userID, questionID string, selected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return ErrSessionNotFound
	}
	if s.Completed {
		return ErrAlreadyCompleted
	}
	s.Answers[questionID] = selected
	return nil
}

func (r *MemoryRepository) CompleteSession(ctx context.Context, id string, result *models.ScoringResult, completedAt time.Time, update AggregateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Completed {
		return ErrAlreadyCompleted
	}
	s.Complete(result.Clone(), completedAt)

	if u, ok := r.users[s.UserID]; ok && update != nil {
		u.UserAggregate = update(u.UserAggregate)
	}
	return nil
}

func (r *MemoryRepository) DeleteStaleSessions(ctx context.Context, startedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.sessions {
		if !s.Completed && s.StartedAt.Before(startedBefore) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// --- Results ---

func (r *MemoryRepository) AppendResult(ctx context.Context, tr *models.TestResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, tr.Clone())
	return nil
}

func (r *MemoryRepository) RecentResults(ctx context.Context, userID string, limit int) ([]*models.TestResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.TestResult
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].UserID != userID {
			continue
		}
		out = append(out, r.results[i].Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountResults(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results), nil
}

func (r *MemoryRepository) CountResultsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, tr := range r.results {
		if tr.UserID == userID && !tr.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// --- Notifications ---

func (r *MemoryRepository) CreateNotifications(ctx context.Context, ns []*models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range ns {
		c := *n
		r.notifications = append(r.notifications, &c)
	}
	return nil
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Notification
	for i := len(r.notifications) - 1; i >= 0; i-- {
		if r.notifications[i].UserID != userID {
			continue
		}
		c := *r.notifications[i]
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, id, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.notifications {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return true, nil
		}
	}
	return false, nil
}

// --- API Clients ---

func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cc := *c
	return &cc, nil
}

func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		now := time.Now()
		c.LastUsedAt = &now
	}
	return nil
}

func copyQuestion(q *models.Question) *models.Question {
	c := *q
	c.Options = append([]string(nil), q.Options...)
	c.CorrectAnswer = models.CopyIndex(q.CorrectAnswer)
	return &c
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.LastActive != nil {
		t := *u.LastActive
		c.LastActive = &t
	}
	return &c
}
