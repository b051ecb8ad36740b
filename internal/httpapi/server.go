// Package httpapi exposes health, metrics and read-only puzzle state over HTTP.
//
// The API is for operators and internal services only: nothing here
// authenticates callers, so it listens on loopback unless HTTP_ADDR says
// otherwise and must not be exposed publicly.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/ad/go-telegram-puzzle/internal/services"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PuzzleReader returns the reveal state of a conversation.
type PuzzleReader interface {
	State(ctx context.Context, conversationID string) (*models.PuzzleState, error)
}

type Server struct {
	db       Pinger
	puzzles  PuzzleReader
	renderer *services.PuzzleRenderer
	registry *prometheus.Registry
}

// NewServer builds the API. A nil registry disables /metrics.
func NewServer(db Pinger, puzzles PuzzleReader, renderer *services.PuzzleRenderer, registry *prometheus.Registry) *Server {
	return &Server{
		db:       db,
		puzzles:  puzzles,
		renderer: renderer,
		registry: registry,
	}
}

// Router returns the chi router with all routes mounted. The /api routes are
// unauthenticated.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.Health)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/conversations/{conversationID}/puzzle", s.GetPuzzle)
	})
	return r
}

// Health checks that the database answers.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := s.db.PingContext(ctx); err != nil {
		log.Printf("[HTTP] Health check failed: %v", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

type puzzleResponse struct {
	ConversationID     string                `json:"conversation_id"`
	RevealedPieces     []int                 `json:"revealed_pieces"`
	RevealedCount      int                   `json:"revealed_count"`
	TotalPieces        int                   `json:"total_pieces"`
	Completed          bool                  `json:"completed"`
	LastMessageSender  string                `json:"last_message_sender,omitempty"`
	LastDailyBonusDate string                `json:"last_daily_bonus_date,omitempty"`
	Version            int64                 `json:"version"`
	Cells              []services.PuzzleCell `json:"cells"`
}

// GetPuzzle returns the reveal state of one conversation.
func (s *Server) GetPuzzle(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if !validConversationID(conversationID) {
		Error(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	state, err := s.puzzles.State(r.Context(), conversationID)
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			Error(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		log.Printf("[HTTP] Failed to load puzzle %s: %v", conversationID, err)
		Error(w, http.StatusInternalServerError, "failed to load puzzle")
		return
	}

	pieces := state.RevealedPieces
	if pieces == nil {
		pieces = []int{}
	}
	JSON(w, http.StatusOK, puzzleResponse{
		ConversationID:     conversationID,
		RevealedPieces:     pieces,
		RevealedCount:      len(pieces),
		TotalPieces:        models.PieceCount,
		Completed:          state.IsComplete(),
		LastMessageSender:  state.LastMessageSender,
		LastDailyBonusDate: state.LastDailyBonusDate,
		Version:            state.Version,
		Cells:              s.renderer.Cells(pieces),
	})
}

// validConversationID accepts only ids built from two distinct participants.
func validConversationID(id string) bool {
	a, b, ok := strings.Cut(id, services.ConversationSeparator)
	if !ok || a == "" || b == "" {
		return false
	}
	return services.ConversationID(a, b) == id
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Printf("[HTTP] %s %s status=%d duration=%s", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
