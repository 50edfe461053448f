// Package scoring turns a test session into a deterministic result.
//
// Compute has no side effects: it reads the session and looks questions up
// through QuestionLookup, so it can serve both completion and on-demand
// result retrieval and always returns the same result for the same state.
package scoring

import (
	"context"
	"fmt"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// QuestionLookup resolves a question by id. A missing question is reported
// as (nil, nil).
type QuestionLookup interface {
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
}

// Compute scores every question in the session's fixed list. Unanswered
// questions count as incorrect; questions deleted since the session started
// are left out of the breakdown but still count towards the total.
func Compute(ctx context.Context, session *models.TestSession, questions QuestionLookup) (*models.ScoringResult, error) {
	ids := session.ScoredQuestionIDs()
	total := session.TotalQuestions()

	breakdown := make([]models.BreakdownEntry, 0, len(ids))
	correct := 0

	for _, id := range ids {
		q, err := questions.GetQuestion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load question %s: %w", id, err)
		}
		if q == nil {
			continue
		}

		entry := Grade(q, session.Answer(id))
		if entry.IsCorrect {
			correct++
		}
		breakdown = append(breakdown, entry)
	}

	return &models.ScoringResult{
		Score:          correct,
		TotalQuestions: total,
		CorrectAnswers: correct,
		Percentage:     Percentage(correct, total),
		Questions:      breakdown,
	}, nil
}

// Grade compares a user's answer against the question's correct index
func Grade(q *models.Question, userAnswer *int) models.BreakdownEntry {
	return models.BreakdownEntry{
		QuestionID:    q.ID,
		Question:      q.Text,
		Options:       append([]string(nil), q.Options...),
		UserAnswer:    models.CopyIndex(userAnswer),
		CorrectAnswer: models.CopyIndex(q.CorrectAnswer),
		IsCorrect:     models.EqualIndex(userAnswer, q.CorrectAnswer),
		Explanation:   q.Explanation,
		Category:      q.Category,
	}
}

// Percentage returns round-half-up of 100*correct/total, 0 for an empty test
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}
