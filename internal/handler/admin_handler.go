package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kgdatatech/securestack/internal/repository"
)

// AdminHandler serves the admin-only surface.
type AdminHandler struct {
	analytics repository.AnalyticsRepository
	log       *slog.Logger
}

func NewAdminHandler(analytics repository.AnalyticsRepository, log *slog.Logger) *AdminHandler {
	return &AdminHandler{analytics: analytics, log: log}
}

// Analytics returns the most recent auth events, newest first.
func (h *AdminHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.analytics.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("analytics listing failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}
