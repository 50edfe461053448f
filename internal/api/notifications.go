package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one frame on the notifications websocket
type StreamMessage struct {
	Type         string               `json:"type"`
	Data         string               `json:"data,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.repo.ListNotifications(r.Context(), UserIDFromContext(r.Context()), notificationsLimit)
	if err != nil {
		s.log.Error("failed to list notifications", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list notifications")
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}

	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := s.repo.MarkNotificationRead(r.Context(), id, UserIDFromContext(r.Context()))
	if err != nil {
		s.log.Error("failed to mark notification read", zap.Error(err), zap.String("notification_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update notification")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "notification not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "notification marked as read",
	})
}

// handleNotificationsWS pushes the user's new notifications as they are created
func (s *Server) handleNotificationsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "live notifications are disabled")
		return
	}

	userID := UserIDFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(userID)
	defer cancel()

	s.log.Info("notifications websocket connected", zap.String("user_id", userID))

	// The reader only handles control frames and notices the client leaving.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	if err := s.sendStreamMessage(conn, StreamMessage{Type: "connected", Data: "listening for notifications"}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			s.log.Info("notifications websocket disconnected", zap.String("user_id", userID))
			return
		case n, ok := <-events:
			if !ok {
				return
			}
			if err := s.sendStreamMessage(conn, StreamMessage{Type: "notification", Notification: n}); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("failed to send stream message", zap.Error(err))
		return err
	}
	return nil
}
