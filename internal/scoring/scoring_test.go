package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/quiz-engine/internal/models"
)

type lookup map[string]*models.Question

func (l lookup) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	return l[id], nil
}

type failingLookup struct{}

func (failingLookup) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	return nil, errors.New("db down")
}

func question(id string, correct *int) *models.Question {
	return &models.Question{
		ID:            id,
		Category:      "general",
		Text:          "Question " + id,
		Options:       []string{"a", "b", "c", "d"},
		CorrectAnswer: correct,
		Explanation:   "explained",
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{1, 8, 13},
		{3, 8, 38},
		{5, 5, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.correct, tt.total), "%d/%d", tt.correct, tt.total)
	}
}

func TestComputeMixedAnswers(t *testing.T) {
	questions := lookup{
		"q1": question("q1", models.IntPtr(0)),
		"q2": question("q2", models.IntPtr(1)),
		"q3": question("q3", models.IntPtr(2)),
	}
	s := models.NewTestSession("s1", "u1", []string{"q1", "q2", "q3"}, time.Now())
	s.Answers["q1"] = 0
	s.Answers["q2"] = 3

	result, err := Compute(context.Background(), s, questions)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Score)
	assert.Equal(t, result.Score, result.CorrectAnswers)
	assert.Equal(t, 3, result.TotalQuestions)
	assert.Equal(t, 33, result.Percentage)
	require.Len(t, result.Questions, 3)

	assert.True(t, result.Questions[0].IsCorrect)
	assert.False(t, result.Questions[1].IsCorrect)
	assert.Equal(t, 3, *result.Questions[1].UserAnswer)
	assert.Nil(t, result.Questions[2].UserAnswer)
	assert.False(t, result.Questions[2].IsCorrect)
	assert.Equal(t, "explained", result.Questions[0].Explanation)
}

func TestComputeTotals(t *testing.T) {
	questions := lookup{
		"q1": question("q1", models.IntPtr(0)),
		"q2": question("q2", models.IntPtr(1)),
		"q3": question("q3", models.IntPtr(2)),
	}

	tests := []struct {
		name        string
		questionIDs []string
		answers     map[string]int
		wantScore   int
		wantTotal   int
		wantPct     int
		wantIDs     []string
	}{
		{
			name:        "all correct",
			questionIDs: []string{"q1", "q2", "q3"},
			answers:     map[string]int{"q1": 0, "q2": 1, "q3": 2},
			wantScore:   3,
			wantTotal:   3,
			wantPct:     100,
			wantIDs:     []string{"q1", "q2", "q3"},
		},
		{
			name:        "none answered",
			questionIDs: []string{"q2", "q3", "q1"},
			answers:     map[string]int{},
			wantScore:   0,
			wantTotal:   3,
			wantPct:     0,
			wantIDs:     []string{"q2", "q3", "q1"},
		},
		{
			name:        "legacy session scores sorted answer keys",
			questionIDs: nil,
			answers:     map[string]int{"q3": 2, "q1": 0, "q2": 0},
			wantScore:   2,
			wantTotal:   3,
			wantPct:     67,
			wantIDs:     []string{"q1", "q2", "q3"},
		},
		{
			name:        "legacy session with deleted question",
			questionIDs: nil,
			answers:     map[string]int{"gone": 1, "q1": 0},
			wantScore:   1,
			wantTotal:   2,
			wantPct:     50,
			wantIDs:     []string{"q1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.NewTestSession("s1", "u1", tt.questionIDs, time.Now())
			for id, v := range tt.answers {
				s.Answers[id] = v
			}

			result, err := Compute(context.Background(), s, questions)
			require.NoError(t, err)

			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantScore, result.CorrectAnswers)
			assert.Equal(t, tt.wantTotal, result.TotalQuestions)
			assert.Equal(t, tt.wantPct, result.Percentage)

			ids := make([]string, len(result.Questions))
			for i, e := range result.Questions {
				ids[i] = e.QuestionID
				if len(tt.answers) == 0 {
					assert.Nil(t, e.UserAnswer, e.QuestionID)
					assert.False(t, e.IsCorrect, e.QuestionID)
				}
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestComputeSkipsDeletedQuestions(t *testing.T) {
	questions := lookup{"q1": question("q1", models.IntPtr(0))}
	s := models.NewTestSession("s1", "u1", []string{"q1", "gone"}, time.Now())
	s.Answers["q1"] = 0
	s.Answers["gone"] = 1

	result, err := Compute(context.Background(), s, questions)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalQuestions)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 50, result.Percentage)
	assert.Len(t, result.Questions, 1)
}

func TestComputeUnparsableCorrectAnswer(t *testing.T) {
	questions := lookup{"q1": question("q1", nil)}
	s := models.NewTestSession("s1", "u1", []string{"q1"}, time.Now())
	s.Answers["q1"] = 0

	result, err := Compute(context.Background(), s, questions)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.False(t, result.Questions[0].IsCorrect)
}

func TestComputeIsDeterministic(t *testing.T) {
	questions := lookup{
		"q1": question("q1", models.IntPtr(0)),
		"q2": question("q2", models.IntPtr(1)),
	}
	s := models.NewTestSession("s1", "u1", []string{"q2", "q1"}, time.Now())
	s.Answers["q2"] = 1

	first, err := Compute(context.Background(), s, questions)
	require.NoError(t, err)
	second, err := Compute(context.Background(), s, questions)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "q2", first.Questions[0].QuestionID)
}

func TestComputeLookupError(t *testing.T) {
	s := models.NewTestSession("s1", "u1", []string{"q1"}, time.Now())

	_, err := Compute(context.Background(), s, failingLookup{})
	assert.Error(t, err)
}

func TestComputeEmptySession(t *testing.T) {
	s := models.NewTestSession("s1", "u1", nil, time.Now())
	s.QuestionIDs = []string{}

	result, err := Compute(context.Background(), s, lookup{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalQuestions)
	assert.Equal(t, 0, result.Percentage)
}
