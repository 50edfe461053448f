package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/terra-clan/quiz-engine/internal/models"
)

func result(correct, total int) *models.ScoringResult {
	pct := 0
	if total > 0 {
		pct = (200*correct + total) / (2 * total)
	}
	return &models.ScoringResult{Score: correct, CorrectAnswers: correct, TotalQuestions: total, Percentage: pct}
}

func TestXPGain(t *testing.T) {
	assert.Equal(t, 1, XPGain(result(1, 3)))   // 33%
	assert.Equal(t, 7, XPGain(result(2, 3)))   // 67% pass bonus
	assert.Equal(t, 14, XPGain(result(4, 5)))  // 80% high score bonus
	assert.Equal(t, 0, XPGain(result(0, 4)))   // nothing right
	assert.Equal(t, 18, XPGain(result(8, 8)))  // perfect
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(99))
	assert.Equal(t, 2, LevelFor(100))
	assert.Equal(t, 4, LevelFor(350))
	assert.Equal(t, 1, LevelFor(-5))
}

func TestApplyFirstTest(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	next := Apply(models.UserAggregate{Level: 1}, result(1, 3), now)

	assert.Equal(t, 1, next.TotalTests)
	assert.InDelta(t, 33.0, next.AverageScore, 0.0001)
	assert.Equal(t, 1, next.XP)
	assert.Equal(t, 1, next.Level)
	assert.Equal(t, 1, next.StreakCurrent)
	assert.Equal(t, 1, next.StreakBest)
	assert.Equal(t, now, *next.LastActive)
}

func TestApplyRunningAverage(t *testing.T) {
	now := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	prev := models.UserAggregate{TotalTests: 2, AverageScore: 50, Level: 1}

	next := Apply(prev, result(4, 4), now)
	assert.Equal(t, 3, next.TotalTests)
	assert.InDelta(t, 66.6667, next.AverageScore, 0.001)
}

func TestApplyStreaks(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 18, 0, 0, 0, time.UTC) }
	at := func(t time.Time) *time.Time { return &t }
	utcPlus3 := time.FixedZone("UTC+3", 3*60*60)
	utcMinus5 := time.FixedZone("UTC-5", -5*60*60)

	tests := []struct {
		name        string
		prev        models.UserAggregate
		now         time.Time
		wantCurrent int
		wantBest    int
	}{
		{"same day keeps streak", models.UserAggregate{StreakCurrent: 3, StreakBest: 5, LastActive: at(day(14))}, day(14).Add(time.Hour), 3, 5},
		{"next day extends", models.UserAggregate{StreakCurrent: 5, StreakBest: 5, LastActive: at(day(13))}, day(14), 6, 6},
		{"gap resets", models.UserAggregate{StreakCurrent: 4, StreakBest: 7, LastActive: at(day(10))}, day(14), 1, 7},
		{"future last active resets", models.UserAggregate{StreakCurrent: 4, StreakBest: 4, LastActive: at(day(16))}, day(14), 1, 4},
		// 23:30 and 01:30 at UTC+3 are both on March 13 in UTC.
		{"local midnight is not a boundary",
			models.UserAggregate{StreakCurrent: 2, StreakBest: 2, LastActive: at(time.Date(2024, 3, 13, 23, 30, 0, 0, utcPlus3))},
			time.Date(2024, 3, 14, 1, 30, 0, 0, utcPlus3), 2, 2},
		// 02:00 and 04:00 at UTC+3 on March 14 fall on March 13 and 14 in UTC.
		{"utc midnight inside one local day extends",
			models.UserAggregate{StreakCurrent: 2, StreakBest: 2, LastActive: at(time.Date(2024, 3, 14, 2, 0, 0, 0, utcPlus3))},
			time.Date(2024, 3, 14, 4, 0, 0, 0, utcPlus3), 3, 3},
		{"mixed zones same utc day",
			models.UserAggregate{StreakCurrent: 1, StreakBest: 3, LastActive: at(time.Date(2024, 3, 13, 20, 0, 0, 0, utcMinus5))},
			time.Date(2024, 3, 14, 18, 0, 0, 0, time.UTC), 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := Apply(tt.prev, result(1, 1), tt.now)
			assert.Equal(t, tt.wantCurrent, next.StreakCurrent)
			assert.Equal(t, tt.wantBest, next.StreakBest)
		})
	}
}

func TestApplyDoesNotMutatePrev(t *testing.T) {
	last := time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)
	prev := models.UserAggregate{TotalTests: 1, AverageScore: 40, XP: 10, Level: 1, StreakCurrent: 1, StreakBest: 1, LastActive: &last}

	_ = Apply(prev, result(3, 3), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, prev.TotalTests)
	assert.Equal(t, last, *prev.LastActive)
}

func TestStartOfDay(t *testing.T) {
	utcPlus3 := time.FixedZone("UTC+3", 3*60*60)
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"utc", time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"east of utc before utc midnight", time.Date(2024, 3, 14, 2, 0, 0, 0, utcPlus3), time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)},
		{"east of utc after utc midnight", time.Date(2024, 3, 14, 4, 0, 0, 0, utcPlus3), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StartOfDay(tt.in)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestStartOfWeek(t *testing.T) {
	thursday := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), StartOfWeek(thursday))

	sunday := time.Date(2024, 3, 17, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday))

	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, StartOfWeek(monday))
}

func TestSummarize(t *testing.T) {
	s := Summarize(models.UserAggregate{XP: 250, Level: 3, StreakCurrent: 2, StreakBest: 4}, 1, 3)

	assert.Equal(t, 3, s.Level)
	assert.Equal(t, 50, s.XPProgress)
	assert.Equal(t, 300, s.NextLevelAt)
	assert.Equal(t, Progress{Done: 1, Target: DailyTarget}, s.Daily)
	assert.Equal(t, Progress{Done: 3, Target: WeeklyTarget}, s.Weekly)

	fresh := Summarize(models.UserAggregate{}, 0, 0)
	assert.Equal(t, 1, fresh.Level)
	assert.Equal(t, 0, fresh.XPProgress)
}

func TestApplyHighScoreFirstTest(t *testing.T) {
	next := Apply(models.UserAggregate{}, result(4, 5), time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC))

	assert.InDelta(t, 80.0, next.AverageScore, 0.0001)
	assert.Equal(t, 4+HighScoreBonus, next.XP)
	assert.Equal(t, next.XP/XPPerLevel+1, next.Level)
}
