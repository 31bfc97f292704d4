package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BolKhata/BolKhata/internal/engine"
	"github.com/BolKhata/BolKhata/internal/models"
)

// utteranceRequest is the body of POST /api/v1/utterance.
type utteranceRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func (s *Server) utteranceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.utteranceHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.utteranceHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultRequestTimeout)
	defer cancel()

	result, err := s.convo.HandleUtterance(ctx, req.UserID, req.Text)
	switch {
	case errors.Is(err, models.ErrEmptyUserID), errors.Is(err, models.ErrEmptyUtterance):
		slog.Warn("Server.utteranceHandler: invalid request", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	case err != nil && engine.IsRecoverable(err):
		slog.Error("Server.utteranceHandler: recoverable engine failure", "userID", req.UserID, "error", err)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Could not save that just now, please retry"))
		return
	case err != nil:
		slog.Error("Server.utteranceHandler: engine failure", "userID", req.UserID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process utterance"))
		return
	}

	slog.Info("Server.utteranceHandler: utterance handled", "userID", req.UserID, "operations", len(result.Operations))
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	txns, err := s.st.RecentTransactions(r.Context(), userID, limit)
	if err != nil {
		slog.Error("Server.transactionsHandler: fetch failed", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch transactions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(txns))
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	reminders, err := s.st.ListReminders(r.Context(), userID)
	if err != nil {
		slog.Error("Server.remindersHandler: fetch failed", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch reminders"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reminders))
}

// patternsHandler recomputes patterns on demand from the user's recent
// transactions. Patterns are derived data and never read back from storage.
func (s *Server) patternsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if s.detector == nil {
		writeJSONResponse(w, http.StatusOK, models.Success([]models.EventPattern{}))
		return
	}

	txns, err := s.st.RecentTransactions(r.Context(), userID, s.patternWindow)
	if err != nil {
		slog.Error("Server.patternsHandler: transaction fetch failed", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch transactions"))
		return
	}
	detected := s.detector.Detect(r.Context(), userID, txns)
	slog.Debug("Server.patternsHandler: patterns computed", "userID", userID, "count", len(detected))
	writeJSONResponse(w, http.StatusOK, models.Success(detected))
}

func (s *Server) providersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	providers, err := s.st.ListServiceProviders(r.Context(), userID)
	if err != nil {
		slog.Error("Server.providersHandler: fetch failed", "userID", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch service providers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(providers))
}

// requireUser enforces GET and a non-empty user_id query parameter.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required parameter: user_id"))
		return "", false
	}
	return userID, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
