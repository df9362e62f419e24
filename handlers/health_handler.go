package handlers

import (
	"net/http"

	"SocialPublisher/utils"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := h.scheduler.GetStats()
	utils.RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"scheduler_active":  stats.IsActive,
		"scheduler_running": stats.IsRunning,
	})
}
