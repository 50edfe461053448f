package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terra-clan/quiz-engine/internal/auth"
	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/storage"
)

const minPasswordLength = 6

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "validation_error", "password must be at least 6 characters")
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "full_name is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("failed to hash password", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to register")
		return
	}

	user := models.NewUser(uuid.NewString(), email, strings.TrimSpace(req.FullName), s.now().UTC())
	user.Bio = req.Bio
	user.PasswordHash = hash
	if req.NotifyNewQuestions != nil {
		user.NotifyNewQuestions = *req.NotifyNewQuestions
	}

	if err := s.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email_taken", "email already registered")
			return
		}
		s.log.Error("failed to create user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to register")
		return
	}

	s.log.Info("user registered", zap.String("user_id", user.ID))
	s.respondWithToken(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := s.repo.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		s.log.Error("failed to load user", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}
	if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect email or password")
		return
	}

	s.respondWithToken(w, http.StatusOK, user)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, user.Profile())
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := s.tokens.IssueToken(user.ID, user.IsAdmin)
	if err != nil {
		s.log.Error("failed to issue token", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to issue token")
		return
	}

	respondJSON(w, status, models.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user.Profile(),
	})
}
