package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/gamification"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/session"
)

// Response helpers

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	})
}

// decodeJSON decodes the body into v. An empty body is accepted when
// allowEmpty is set and leaves v untouched.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

// respondSessionError maps session errors onto HTTP statuses
func (s *Server) respondSessionError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, session.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, session.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		s.log.Error("failed to "+action, zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// currentUser loads the signed-in user, writing the error response itself
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	userID := UserIDFromContext(r.Context())
	user, err := s.repo.GetUser(r.Context(), userID)
	if err != nil {
		s.log.Error("failed to load user", zap.Error(err), zap.String("user_id", userID))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return nil, false
	}
	if user == nil {
		respondError(w, http.StatusUnauthorized, "invalid_token", "user no longer exists")
		return nil, false
	}
	return user, true
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if err := s.repo.Ping(r.Context()); err != nil {
		checks["store"] = err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	for name, err := range s.registry.HealthCheckAll(r.Context()) {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		s.log.Warn("readiness check failed", zap.Any("checks", checks))
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"services": checks,
	})
}

// Public stats

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.Leaderboard(r.Context(), leaderboardSize)
	if err != nil {
		s.log.Error("failed to load leaderboard", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load leaderboard")
		return
	}

	entries := make([]models.LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = models.NewLeaderboardEntry(i+1, u)
	}

	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.repo.GetUser(r.Context(), id)
	if err != nil {
		s.log.Error("failed to load user", zap.Error(err), zap.String("user_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	recent, err := s.repo.RecentResults(r.Context(), id, recentResultsLimit)
	if err != nil {
		s.log.Error("failed to load recent results", zap.Error(err), zap.String("user_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load results")
		return
	}
	if recent == nil {
		recent = []*models.TestResult{}
	}

	respondJSON(w, http.StatusOK, models.UserProfileResponse{
		User:        user.Profile(),
		RecentTests: recent,
	})
}

func (s *Server) handleGamificationSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	now := s.now()
	daily, err := s.repo.CountResultsSince(r.Context(), user.ID, gamification.StartOfDay(now))
	if err != nil {
		s.log.Error("failed to count daily results", zap.Error(err), zap.String("user_id", user.ID))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to build summary")
		return
	}

	weekly, err := s.repo.CountResultsSince(r.Context(), user.ID, gamification.StartOfWeek(now))
	if err != nil {
		s.log.Error("failed to count weekly results", zap.Error(err), zap.String("user_id", user.ID))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to build summary")
		return
	}

	respondJSON(w, http.StatusOK, gamification.Summarize(user.UserAggregate, daily, weekly))
}
