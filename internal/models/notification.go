package models

import "time"

// NotificationType classifies a notification for the UI
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
)

// Notification is a message addressed to a single user.
// QuestionID is set for "new question" notifications so the client can start
// a single-question session from it.
type Notification struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Type       NotificationType `json:"type"`
	Read       bool             `json:"read"`
	QuestionID string           `json:"question_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
