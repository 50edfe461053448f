package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

// --- Profile handlers (signed-in user edits their own account) ---

func (s *Server) handleUpdateBio(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateBioRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := req.Normalize(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if !s.updateProfile(w, r, models.ProfileUpdate{Bio: &req.Bio}) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "bio updated",
		"bio":     req.Bio,
	})
}

func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateNameRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := req.Normalize(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if !s.updateProfile(w, r, models.ProfileUpdate{FullName: &req.FullName}) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":   "name updated",
		"full_name": req.FullName,
	})
}

func (s *Server) handleUpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationSettingsRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	enabled := req.Enabled()
	if !s.updateProfile(w, r, models.ProfileUpdate{NotifyNewQuestions: &enabled}) {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":              "notification settings updated",
		"notify_new_questions": enabled,
	})
}

// updateProfile applies update to the signed-in user, writing the error
// response itself
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request, update models.ProfileUpdate) bool {
	userID := UserIDFromContext(r.Context())

	err := s.repo.UpdateProfile(r.Context(), userID, update)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		respondError(w, http.StatusUnauthorized, "invalid_token", "user no longer exists")
		return false
	case err != nil:
		s.log.Error("failed to update profile", zap.Error(err), zap.String("user_id", userID))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update profile")
		return false
	}

	s.log.Info("profile updated", zap.String("user_id", userID))
	return true
}
