package models

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// UserAggregate holds the cumulative statistics of a user
type UserAggregate struct {
	TotalTests    int        `json:"total_tests"`
	AverageScore  float64    `json:"average_score"`
	XP            int        `json:"xp"`
	Level         int        `json:"level"`
	StreakCurrent int        `json:"streak_current"`
	StreakBest    int        `json:"streak_best"`
	LastActive    *time.Time `json:"last_active,omitempty"`
}

// User is an account together with its aggregate stats
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	FullName           string    `json:"full_name"`
	Bio                string    `json:"bio"`
	PasswordHash       string    `json:"-"`
	IsAdmin            bool      `json:"is_admin"`
	IsPremium          bool      `json:"is_premium"`
	NotifyNewQuestions bool      `json:"notify_new_questions"`
	CreatedAt          time.Time `json:"created_at"`
	UserAggregate
}

// NewUser creates a user with level 1 and empty stats
func NewUser(id, email, fullName string, createdAt time.Time) *User {
	return &User{
		ID:                 id,
		Email:              email,
		FullName:           fullName,
		NotifyNewQuestions: true,
		CreatedAt:          createdAt,
		UserAggregate:      UserAggregate{Level: 1},
	}
}

// Profile is the public, password-free view of a user
type Profile struct {
	ID                 string  `json:"id"`
	Email              string  `json:"email"`
	FullName           string  `json:"full_name"`
	Bio                string  `json:"bio"`
	TotalTests         int     `json:"total_tests"`
	AverageScore       float64 `json:"average_score"`
	IsAdmin            bool    `json:"is_admin"`
	IsPremium          bool    `json:"is_premium"`
	NotifyNewQuestions bool    `json:"notify_new_questions"`
	XP                 int     `json:"xp"`
	Level              int     `json:"level"`
}

// Profile returns the public view of the user
func (u *User) Profile() Profile {
	return Profile{
		ID:                 u.ID,
		Email:              u.Email,
		FullName:           u.FullName,
		Bio:                u.Bio,
		TotalTests:         u.TotalTests,
		AverageScore:       u.AverageScore,
		IsAdmin:            u.IsAdmin,
		IsPremium:          u.IsPremium,
		NotifyNewQuestions: u.NotifyNewQuestions,
		XP:                 u.XP,
		Level:              u.Level,
	}
}

// LeaderboardEntry is one ranked row of the leaderboard
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	ID           string  `json:"id"`
	FullName     string  `json:"full_name"`
	Bio          string  `json:"bio"`
	TotalTests   int     `json:"total_tests"`
	AverageScore float64 `json:"average_score"`
	IsPremium    bool    `json:"is_premium"`
}

// NewLeaderboardEntry ranks a user, rounding the average to one decimal
func NewLeaderboardEntry(rank int, u *User) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:         rank,
		ID:           u.ID,
		FullName:     u.FullName,
		Bio:          u.Bio,
		TotalTests:   u.TotalTests,
		AverageScore: math.Round(u.AverageScore*10) / 10,
		IsPremium:    u.IsPremium,
	}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	FullName           string `json:"full_name"`
	Bio                string `json:"bio"`
	NotifyNewQuestions *bool  `json:"notify_new_questions,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned after register or login
type AuthResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        Profile `json:"user"`
}

// UserProfileResponse is returned for a public profile lookup
type UserProfileResponse struct {
	User        Profile       `json:"user"`
	RecentTests []*TestResult `json:"recent_tests"`
}

// Profile field limits, counted in characters
const (
	MaxBioLength  = 500
	MinNameLength = 2
	MaxNameLength = 100
)

// ProfileUpdate changes the user-editable fields; nil fields are left alone
type ProfileUpdate struct {
	FullName           *string
	Bio                *string
	NotifyNewQuestions *bool
}

// Apply writes the set fields onto u
func (p ProfileUpdate) Apply(u *User) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	if p.NotifyNewQuestions != nil {
		u.NotifyNewQuestions = *p.NotifyNewQuestions
	}
}

// UpdateBioRequest is the body of POST /profile/update-bio
type UpdateBioRequest struct {
	Bio string `json:"bio"`
}

// Normalize trims the bio and enforces its length limit
func (r *UpdateBioRequest) Normalize() error {
	r.Bio = strings.TrimSpace(r.Bio)
	if utf8.RuneCountInString(r.Bio) > MaxBioLength {
		return fmt.Errorf("bio must be at most %d characters", MaxBioLength)
	}
	return nil
}

// UpdateNameRequest is the body of POST /profile/update-name
type UpdateNameRequest struct {
	FullName string `json:"full_name"`
}

// Normalize trims the name and enforces its length limits
func (r *UpdateNameRequest) Normalize() error {
	r.FullName = strings.TrimSpace(r.FullName)
	n := utf8.RuneCountInString(r.FullName)
	if n < MinNameLength {
		return fmt.Errorf("full_name must be at least %d characters", MinNameLength)
	}
	if n > MaxNameLength {
		return fmt.Errorf("full_name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// NotificationSettingsRequest is the body of POST /profile/update-notification-settings.
// A missing flag turns notifications on.
type NotificationSettingsRequest struct {
	NotifyNewQuestions *bool `json:"notify_new_questions,omitempty"`
}

// Enabled resolves the flag with its default
func (r NotificationSettingsRequest) Enabled() bool {
	return r.NotifyNewQuestions == nil || *r.NotifyNewQuestions
}

// AdminStats is the admin dashboard summary
type AdminStats struct {
	TotalUsers     int       `json:"total_users"`
	TotalQuestions int       `json:"total_questions"`
	TotalTests     int       `json:"total_tests"`
	RecentUsers    []Profile `json:"recent_users"`
}
