package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

// --- Admin handlers (API key auth) ---

func (s *Server) handleAdminListQuestions(w http.ResponseWriter, r *http.Request) {
	filter := models.FilterNone
	switch r.URL.Query().Get("premium") {
	case "true":
		filter = models.FilterPremiumOnly
	case "false":
		filter = models.FilterExcludePremium
	}

	questions, err := s.repo.ListQuestions(r.Context(), filter)
	if err != nil {
		s.log.Error("failed to list questions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list questions")
		return
	}
	if questions == nil {
		questions = []*models.Question{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"total":     len(questions),
	})
}

func (s *Server) handleAdminCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQuestionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	q := req.ToQuestion(uuid.NewString(), s.now().UTC())
	if q.Category == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "category is required")
		return
	}
	if err := q.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if err := s.repo.CreateQuestion(r.Context(), q); err != nil {
		s.log.Error("failed to create question", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create question")
		return
	}

	client := ClientFromContext(r.Context())
	s.log.Info("question created",
		zap.String("question_id", q.ID),
		zap.String("category", q.Category),
		zap.String("client", client.Name),
	)

	if s.notifier != nil {
		if _, err := s.notifier.NewQuestion(r.Context(), q); err != nil {
			s.log.Warn("failed to notify users about new question", zap.String("question_id", q.ID), zap.Error(err))
		}
	}

	respondJSON(w, http.StatusCreated, q)
}

func (s *Server) handleAdminDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.repo.DeleteQuestion(r.Context(), id)
	if err != nil {
		s.log.Error("failed to delete question", zap.Error(err), zap.String("question_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete question")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "not_found", "question not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "question deleted",
	})
}

func (s *Server) handleAdminSeedQuestions(w http.ResponseWriter, r *http.Request) {
	if s.bank == nil || s.bankDir == "" {
		respondError(w, http.StatusConflict, "invalid_state", "no question bank configured")
		return
	}

	if err := s.bank.LoadFromDir(s.bankDir); err != nil {
		s.log.Error("failed to load question bank", zap.Error(err), zap.String("dir", s.bankDir))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load question bank")
		return
	}

	seeded, err := s.bank.Seed(r.Context(), s.repo)
	if err != nil {
		s.log.Error("failed to seed questions", zap.Error(err), zap.Int("seeded", seeded))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to seed questions")
		return
	}

	total, err := s.repo.CountQuestions(r.Context())
	if err != nil {
		s.log.Warn("failed to count questions", zap.Error(err))
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"seeded": seeded,
		"total":  total,
	})
}

func (s *Server) handleAdminTogglePremium(w http.ResponseWriter, r *http.Request) {
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

	premium := !user.IsPremium
	if err := s.repo.SetPremium(r.Context(), id, premium); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		s.log.Error("failed to update premium flag", zap.Error(err), zap.String("user_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{
		"is_premium": premium,
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var stats models.AdminStats
	var err error

	if stats.TotalUsers, err = s.repo.CountUsers(ctx); err != nil {
		s.log.Error("failed to count users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load stats")
		return
	}
	if stats.TotalQuestions, err = s.repo.CountQuestions(ctx); err != nil {
		s.log.Error("failed to count questions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load stats")
		return
	}
	if stats.TotalTests, err = s.repo.CountResults(ctx); err != nil {
		s.log.Error("failed to count results", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load stats")
		return
	}

	recent, err := s.repo.ListUsers(ctx, recentUsersLimit)
	if err != nil {
		s.log.Error("failed to list recent users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load stats")
		return
	}
	stats.RecentUsers = profiles(recent)

	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context(), 0)
	if err != nil {
		s.log.Error("failed to list users", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"users": profiles(users),
		"total": len(users),
	})
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.repo.DeleteUser(r.Context(), id)
	if err != nil {
		s.log.Error("failed to delete user", zap.Error(err), zap.String("user_id", id))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete user")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "not_found", "user not found")
		return
	}

	client := ClientFromContext(r.Context())
	s.log.Info("user deleted",
		zap.String("user_id", id),
		zap.String("client", client.Name),
	)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "user deleted",
	})
}

// profiles maps users onto their password-free views
func profiles(users []*models.User) []models.Profile {
	out := make([]models.Profile, len(users))
	for i, u := range users {
		out[i] = u.Profile()
	}
	return out
}
