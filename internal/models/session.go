package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// TestSession is a single user's attempt at a fixed, ordered set of questions.
// QuestionIDs never changes after creation; Answers is sparse.
type TestSession struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	QuestionIDs []string       `json:"questions"`
	Answers     map[string]int `json:"answers"`
	Completed   bool           `json:"completed"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      *ScoringResult `json:"result,omitempty"`
}

// NewTestSession creates an incomplete session with an empty answers map
func NewTestSession(id, userID string, questionIDs []string, startedAt time.Time) *TestSession {
	return &TestSession{
		ID:          id,
		UserID:      userID,
		QuestionIDs: append([]string(nil), questionIDs...),
		Answers:     make(map[string]int),
		StartedAt:   startedAt,
	}
}

// TotalQuestions returns the size of the fixed question list.
// Legacy sessions stored without a list fall back to the answered count.
func (s *TestSession) TotalQuestions() int {
	if s.QuestionIDs != nil {
		return len(s.QuestionIDs)
	}
	return len(s.Answers)
}

// ScoredQuestionIDs returns the ids to score in order. Legacy sessions
// without a fixed list are scored over their answer keys in sorted order.
func (s *TestSession) ScoredQuestionIDs() []string {
	if s.QuestionIDs != nil {
		return s.QuestionIDs
	}
	ids := make([]string, 0, len(s.Answers))
	for id := range s.Answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Answer returns the recorded answer for a question, nil when unanswered
func (s *TestSession) Answer(questionID string) *int {
	v, ok := s.Answers[questionID]
	if !ok {
		return nil
	}
	return &v
}

// Complete marks the session completed and caches the result
func (s *TestSession) Complete(result *ScoringResult, at time.Time) {
	s.Completed = true
	s.CompletedAt = &at
	s.Result = result
}

// Clone returns a deep copy safe to hand out of a store
func (s *TestSession) Clone() *TestSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.QuestionIDs != nil {
		c.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	}
	c.Answers = make(map[string]int, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Result = s.Result.Clone()
	return &c
}

// CoerceAnswer converts a stored answer value to an int. Older documents
// sometimes stored the index as a string.
func CoerceAnswer(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// StartTestRequest is the body of POST /tests/start
type StartTestRequest struct {
	Limit              *int   `json:"limit,omitempty"`
	PremiumOnly        bool   `json:"premium_only,omitempty"`
	SpecificQuestionID string `json:"specific_question_id,omitempty"`
}

// StartTestResponse is returned after a session is created
type StartTestResponse struct {
	SessionID       string       `json:"session_id"`
	TotalQuestions  int          `json:"total_questions"`
	CurrentQuestion int          `json:"current_question"`
	Question        QuestionView `json:"question"`
}

// SubmitAnswerRequest is the body of POST /tests/{id}/answer
type SubmitAnswerRequest struct {
	QuestionID     string `json:"question_id"`
	SelectedOption *int   `json:"selected_option"`
}

// QuestionResponse is returned for GET /tests/{id}/question/{index}
type QuestionResponse struct {
	SessionID       string       `json:"session_id"`
	TotalQuestions  int          `json:"total_questions"`
	CurrentQuestion int          `json:"current_question"`
	Question        QuestionView `json:"question"`
	UserAnswer      *int         `json:"user_answer"`
}
