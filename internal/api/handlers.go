package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prukaya/finbuddy/internal/answer"
	"github.com/prukaya/finbuddy/internal/auth"
	"github.com/prukaya/finbuddy/internal/session"
)

// maxQueryBody caps request bodies; a long history is still well under it.
const maxQueryBody = 1 << 20

type contextKey string

const subjectKey contextKey = "subject"

// Responder produces a reply for a query and its prior turns.
type Responder interface {
	GenerateResponse(ctx context.Context, query string, history []session.Turn) (string, error)
}

type APIHandler struct {
	responder Responder
	jwtSecret string
	logger    *slog.Logger
}

func NewAPIHandler(responder Responder, jwtSecret string) *APIHandler {
	return &APIHandler{
		responder: responder,
		jwtSecret: jwtSecret,
		logger:    slog.Default().With(slog.String("component", "api")),
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req answer.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		http.Error(w, "No prompt provided", http.StatusBadRequest)
		return
	}
	for _, turn := range req.ChatHistory {
		if turn.Role != session.RoleUser && turn.Role != session.RoleAssistant {
			http.Error(w, "Invalid chat_history role: "+string(turn.Role), http.StatusBadRequest)
			return
		}
	}

	reply, err := h.responder.GenerateResponse(r.Context(), req.Query, req.ChatHistory)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to generate response",
			slog.Any("subject", r.Context().Value(subjectKey)),
			slog.Any("error", err))
		http.Error(w, "Failed to generate response", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer.QueryResponse{Response: reply})
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// SessionStats reports live session counts.
type SessionStats interface {
	Stats() session.Stats
}

// SessionStatsHandler serves the bot's live session counts.
func SessionStatsHandler(stats SessionStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats.Stats())
	}
}
