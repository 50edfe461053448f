package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/quiz-engine/internal/models"
	"github.com/terra-clan/quiz-engine/internal/session"
)

func (s *Server) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var req models.StartTestRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	opts := session.CreateOptions{
		PremiumOnly: req.PremiumOnly,
		QuestionID:  req.SpecificQuestionID,
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}

	s.startTest(w, r, opts)
}

func (s *Server) handleStartSingleQuestion(w http.ResponseWriter, r *http.Request) {
	s.startTest(w, r, session.CreateOptions{
		Limit:      1,
		QuestionID: chi.URLParam(r, "questionId"),
	})
}

func (s *Server) startTest(w http.ResponseWriter, r *http.Request, opts session.CreateOptions) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	resp, err := s.sessions.Create(r.Context(), user, opts)
	if err != nil {
		s.respondSessionError(w, err, "start test")
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.QuestionID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "question_id is required")
		return
	}
	if req.SelectedOption == nil {
		respondError(w, http.StatusBadRequest, "validation_error", "selected_option is required")
		return
	}

	sessionID := chi.URLParam(r, "id")
	err := s.sessions.RecordAnswer(r.Context(), sessionID, UserIDFromContext(r.Context()), req.QuestionID, *req.SelectedOption)
	if err != nil {
		s.respondSessionError(w, err, "submit answer")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "answer submitted",
	})
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "question index must be an integer")
		return
	}

	resp, err := s.sessions.GetQuestionAt(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()), index)
	if err != nil {
		s.respondSessionError(w, err, "get question")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompleteTest(w http.ResponseWriter, r *http.Request) {
	result, err := s.sessions.Complete(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		s.respondSessionError(w, err, "complete test")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.sessions.Result(r.Context(), chi.URLParam(r, "id"), UserIDFromContext(r.Context()))
	if err != nil {
		s.respondSessionError(w, err, "get result")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
