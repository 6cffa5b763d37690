package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/benvon/finance-advisor/internal/middleware"
	"github.com/benvon/finance-advisor/internal/models"
	"github.com/benvon/finance-advisor/internal/queue"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// InsightService reads and regenerates cached insights
type InsightService interface {
	GetActive(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error)
	Regenerate(ctx context.Context, userID uuid.UUID) ([]*models.InsightCacheEntry, error)
}

// InsightsHandler handles insight requests
type InsightsHandler struct {
	insights InsightService
	jobs     queue.Enqueuer
	logger   *zap.Logger
}

// NewInsightsHandler creates a new insights handler. jobs may be nil, in which case
// asynchronous regeneration is unavailable.
func NewInsightsHandler(insights InsightService, jobs queue.Enqueuer, logger *zap.Logger) *InsightsHandler {
	return &InsightsHandler{insights: insights, jobs: jobs, logger: logger}
}

// RegisterRoutes registers insight routes
func (h *InsightsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/insights", h.GetInsights).Methods("GET")
	r.HandleFunc("/insights/regenerate", h.Regenerate).Methods("POST")
}

// GetInsights returns the active insights, most important first
func (h *InsightsHandler) GetInsights(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	entries, err := h.insights.GetActive(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, "insights_get_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// RegenerateAccepted is returned when regeneration was queued
type RegenerateAccepted struct {
	JobID string `json:"jobId"`
}

// Regenerate rebuilds the insights now, or with ?async=true queues the rebuild and
// answers 202
func (h *InsightsHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, ErrCodeUnauthenticated, "User not found in context")
		return
	}

	async := false
	if raw := r.URL.Query().Get("async"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "async must be true or false")
			return
		}
		async = parsed
	}

	if async {
		if h.jobs == nil {
			respondJSONError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Background regeneration is not available")
			return
		}
		job := queue.NewRegenerateInsightsJob(user.ID, queue.ReasonRequested, 0)
		if err := h.jobs.Enqueue(r.Context(), job); err != nil {
			respondServiceError(w, h.logger, "insight_job_enqueue_failed", err)
			return
		}
		respondJSON(w, http.StatusAccepted, RegenerateAccepted{JobID: job.ID.String()})
		return
	}

	entries, err := h.insights.Regenerate(r.Context(), user.ID)
	if err != nil {
		respondServiceError(w, h.logger, "insight_regeneration_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}
