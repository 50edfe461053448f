// Package notify tells users about new questions. Notifications are stored
// per user and pushed to any open websocket through the Hub.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
)

// Store is what the notifier needs from storage
type Store interface {
	ListNotifiableUsers(ctx context.Context) ([]*models.User, error)
	CreateNotifications(ctx context.Context, ns []*models.Notification) error
}

// Notifier fans out notifications to opted-in users
type Notifier struct {
	store Store
	hub   *Hub
	log   *zap.Logger
	now   func() time.Time
}

// NewNotifier creates a notifier. hub may be nil when nothing is pushed live.
func NewNotifier(store Store, hub *Hub, log *zap.Logger) *Notifier {
	return &Notifier{store: store, hub: hub, log: log, now: time.Now}
}

// NewQuestion notifies every opted-in user about q and returns the number of
// notifications stored. Premium questions only go to premium users.
func (n *Notifier) NewQuestion(ctx context.Context, q *models.Question) (int, error) {
	users, err := n.store.ListNotifiableUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list notifiable users: %w", err)
	}

	now := n.now().UTC()
	batch := make([]*models.Notification, 0, len(users))
	for _, u := range users {
		if q.IsPremium && !u.IsPremium {
			continue
		}
		batch = append(batch, &models.Notification{
			ID:         uuid.NewString(),
			UserID:     u.ID,
			Title:      "New question available",
			Message:    fmt.Sprintf("A new %s question was added. Try it now!", q.Category),
			Type:       models.NotificationInfo,
			QuestionID: q.ID,
			CreatedAt:  now,
		})
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := n.store.CreateNotifications(ctx, batch); err != nil {
		return 0, fmt.Errorf("failed to store notifications: %w", err)
	}

	pushed := 0
	if n.hub != nil {
		for _, nt := range batch {
			pushed += n.hub.Publish(nt)
		}
	}

	n.log.Info("new question notifications sent",
		zap.String("question_id", q.ID),
		zap.Int("stored", len(batch)),
		zap.Int("pushed", pushed),
	)
	return len(batch), nil
}
