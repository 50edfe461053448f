package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	MinOptions = 2
	MaxOptions = 4
)

// QuestionFilter selects which part of the question pool is eligible for a session
type QuestionFilter string

const (
	FilterNone           QuestionFilter = ""
	FilterExcludePremium QuestionFilter = "exclude_premium"
	FilterPremiumOnly    QuestionFilter = "premium_only"
)

// Matches reports whether a question passes the filter
func (f QuestionFilter) Matches(q *Question) bool {
	switch f {
	case FilterExcludePremium:
		return !q.IsPremium
	case FilterPremiumOnly:
		return q.IsPremium
	default:
		return true
	}
}

// Question is a multiple-choice question in canonical form.
// CorrectAnswer is nil when the stored value could not be parsed.
type Question struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Text          string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectAnswer *int      `json:"correct_answer"`
	Explanation   string    `json:"explanation"`
	IsPremium     bool      `json:"is_premium"`
	CreatedAt     time.Time `json:"created_at"`
}

// QuestionView is the client-facing shape of a question inside a session.
// CorrectAnswer and Explanation stay empty until the answer may be revealed.
type QuestionView struct {
	ID            string   `json:"id"`
	Text          string   `json:"question_text"`
	Options       []string `json:"options"`
	Category      string   `json:"category"`
	CorrectAnswer *int     `json:"correct_answer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
}

// View builds the public view, revealing the answer only when asked to
func (q *Question) View(reveal bool) QuestionView {
	v := QuestionView{
		ID:       q.ID,
		Text:     q.Text,
		Options:  append([]string(nil), q.Options...),
		Category: q.Category,
	}
	if reveal {
		v.CorrectAnswer = CopyIndex(q.CorrectAnswer)
		v.Explanation = q.Explanation
	}
	return v
}

// CreateQuestionRequest is the admin payload for adding a question.
// Either Options or the legacy OptionA..OptionD fields may be used.
type CreateQuestionRequest struct {
	Category      string   `json:"category"`
	Text          string   `json:"question_text"`
	Options       []string `json:"options,omitempty"`
	OptionA       *string  `json:"option_a,omitempty"`
	OptionB       *string  `json:"option_b,omitempty"`
	OptionC       *string  `json:"option_c,omitempty"`
	OptionD       *string  `json:"option_d,omitempty"`
	CorrectAnswer any      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	IsPremium     bool     `json:"is_premium"`
}

// NormalizeOptions returns options when present, otherwise the non-nil
// lettered options in A..D order.
func NormalizeOptions(options []string, lettered ...*string) []string {
	if len(options) > 0 {
		return append([]string(nil), options...)
	}
	out := make([]string, 0, len(lettered))
	for _, opt := range lettered {
		if opt != nil {
			out = append(out, *opt)
		}
	}
	return out
}

var letterIndex = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

// NormalizeCorrectAnswer converts a stored correct-answer value to a 0-based
// index. Digit strings and integers pass through, letters A-D map to 0-3.
// Anything else yields nil.
func NormalizeCorrectAnswer(raw any) *int {
	switch v := raw.(type) {
	case nil:
		return nil
	case int:
		return &v
	case int32:
		return IntPtr(int(v))
	case int64:
		return IntPtr(int(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil
		}
		return IntPtr(int(v))
	case *int:
		return CopyIndex(v)
	case string:
		return parseAnswerString(v)
	default:
		return nil
	}
}

func parseAnswerString(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &n
	}
	if idx, ok := letterIndex[strings.ToUpper(s)]; ok {
		return &idx
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IntPtr returns a pointer to n
func IntPtr(n int) *int {
	return &n
}

// CopyIndex returns an independent copy of a nullable index
func CopyIndex(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}

// EqualIndex reports whether both indices are set and equal
func EqualIndex(a, b *int) bool {
	return a != nil && b != nil && *a == *b
}

// Validate checks option count and that a correct answer is set and in range
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is required")
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("question must have between %d and %d options, got %d", MinOptions, MaxOptions, len(q.Options))
	}
	if q.CorrectAnswer == nil {
		return fmt.Errorf("correct answer is missing or unparsable")
	}
	if *q.CorrectAnswer < 0 || *q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("correct answer %d is out of range for %d options", *q.CorrectAnswer, len(q.Options))
	}
	return nil
}

// ToQuestion converts the request into a canonical question
func (r *CreateQuestionRequest) ToQuestion(id string, createdAt time.Time) *Question {
	return &Question{
		ID:            id,
		Category:      strings.TrimSpace(r.Category),
		Text:          strings.TrimSpace(r.Text),
		Options:       NormalizeOptions(r.Options, r.OptionA, r.OptionB, r.OptionC, r.OptionD),
		CorrectAnswer: NormalizeCorrectAnswer(r.CorrectAnswer),
		Explanation:   r.Explanation,
		IsPremium:     r.IsPremium,
		CreatedAt:     createdAt,
	}
}
