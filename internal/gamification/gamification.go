// Package gamification derives XP, level and streaks from completed tests.
package gamification

import (
	"time"

	"github.com/terra-clan/quiz-engine/internal/models"
)

const (
	XPPerLevel = 100

	HighScoreThreshold = 80
	HighScoreBonus     = 10
	PassThreshold      = 60
	PassBonus          = 5

	DailyTarget  = 1
	WeeklyTarget = 5
)

// Apply folds one scoring result into the prior aggregate and returns the new one.
// The caller owns the read-modify-write against the store.
func Apply(prev models.UserAggregate, result *models.ScoringResult, now time.Time) models.UserAggregate {
	next := prev

	next.TotalTests = prev.TotalTests + 1
	if next.TotalTests > 0 {
		next.AverageScore = (prev.AverageScore*float64(prev.TotalTests) + float64(result.Percentage)) / float64(next.TotalTests)
	} else {
		next.AverageScore = float64(result.Percentage)
	}

	next.XP = prev.XP + XPGain(result)
	next.Level = LevelFor(next.XP)

	next.StreakCurrent = nextStreak(prev.StreakCurrent, prev.LastActive, now)
	next.StreakBest = max(prev.StreakBest, next.StreakCurrent)

	at := now.UTC()
	next.LastActive = &at

	return next
}

// XPGain is one point per correct answer plus a score bonus
func XPGain(result *models.ScoringResult) int {
	gain := result.CorrectAnswers
	switch {
	case result.Percentage >= HighScoreThreshold:
		gain += HighScoreBonus
	case result.Percentage >= PassThreshold:
		gain += PassBonus
	}
	return gain
}

// LevelFor maps XP onto the flat 100-XP-per-level curve
func LevelFor(xp int) int {
	return max(1, xp/XPPerLevel+1)
}

func nextStreak(current int, lastActive *time.Time, now time.Time) int {
	if lastActive == nil {
		return 1
	}

	today := StartOfDay(now)
	last := StartOfDay(*lastActive)

	switch {
	case last.Equal(today):
		return current
	case last.AddDate(0, 0, 1).Equal(today):
		return current + 1
	default:
		return 1
	}
}

// StartOfDay truncates t to midnight UTC
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns Monday midnight UTC of t's week
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Progress counts completed tests against a target
type Progress struct {
	Done   int `json:"done"`
	Target int `json:"target"`
}

// Summary is the dashboard view of a user's gamification state
type Summary struct {
	Level         int      `json:"level"`
	XP            int      `json:"xp"`
	XPProgress    int      `json:"xp_progress"`
	NextLevelAt   int      `json:"next_level_at"`
	StreakCurrent int      `json:"streak_current"`
	StreakBest    int      `json:"streak_best"`
	Daily         Progress `json:"daily"`
	Weekly        Progress `json:"weekly"`
}

// Summarize builds the dashboard summary from the stored aggregate and the
// number of tests completed today and this week.
func Summarize(agg models.UserAggregate, dailyDone, weeklyDone int) Summary {
	level := max(1, agg.Level)
	inLevel := agg.XP - (level-1)*XPPerLevel

	return Summary{
		Level:         level,
		XP:            agg.XP,
		XPProgress:    min(100, max(0, inLevel*100/XPPerLevel)),
		NextLevelAt:   level * XPPerLevel,
		StreakCurrent: agg.StreakCurrent,
		StreakBest:    agg.StreakBest,
		Daily:         Progress{Done: dailyDone, Target: DailyTarget},
		Weekly:        Progress{Done: weeklyDone, Target: WeeklyTarget},
	}
}
