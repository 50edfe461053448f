package models

import "time"

// BreakdownEntry is the per-question scoring detail
type BreakdownEntry struct {
	QuestionID    string   `json:"question_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	UserAnswer    *int     `json:"user_answer"`
	CorrectAnswer *int     `json:"correct_answer"`
	IsCorrect     bool     `json:"is_correct"`
	Explanation   string   `json:"explanation"`
	Category      string   `json:"category"`
}

// ScoringResult is the outcome of scoring a session.
// CorrectAnswers always equals Score; both are kept for API compatibility.
type ScoringResult struct {
	Score          int              `json:"score"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers int              `json:"correct_answers"`
	Percentage     int              `json:"percentage"`
	Questions      []BreakdownEntry `json:"questions_with_answers"`
}

// Clone returns a deep copy of the result
func (r *ScoringResult) Clone() *ScoringResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Questions = cloneBreakdown(r.Questions)
	return &c
}

func cloneBreakdown(entries []BreakdownEntry) []BreakdownEntry {
	out := make([]BreakdownEntry, len(entries))
	for i, e := range entries {
		e.Options = append([]string(nil), e.Options...)
		e.UserAnswer = CopyIndex(e.UserAnswer)
		e.CorrectAnswer = CopyIndex(e.CorrectAnswer)
		out[i] = e
	}
	return out
}

// TestResult is the durable history record appended on completion
type TestResult struct {
	ID             string           `json:"id"`
	SessionID      string           `json:"session_id"`
	UserID         string           `json:"user_id"`
	UserName       string           `json:"user_name"`
	Score          int              `json:"score"`
	Percentage     int              `json:"percentage"`
	TotalQuestions int              `json:"total_questions"`
	CorrectAnswers int              `json:"correct_answers"`
	Questions      []BreakdownEntry `json:"questions_with_answers"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// NewTestResult snapshots a scoring result for the history store
func NewTestResult(id string, session *TestSession, user *User, result *ScoringResult, at time.Time) *TestResult {
	tr := &TestResult{
		ID:             id,
		SessionID:      session.ID,
		UserID:         session.UserID,
		Score:          result.Score,
		Percentage:     result.Percentage,
		TotalQuestions: result.TotalQuestions,
		CorrectAnswers: result.CorrectAnswers,
		Questions:      result.Clone().Questions,
		CompletedAt:    at,
	}
	if user != nil {
		tr.UserName = user.FullName
	}
	return tr
}

// Clone returns a deep copy of the history record
func (tr *TestResult) Clone() *TestResult {
	if tr == nil {
		return nil
	}
	c := *tr
	c.Questions = cloneBreakdown(tr.Questions)
	return &c
}
