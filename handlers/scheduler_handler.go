package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"SocialPublisher/services"
	"SocialPublisher/utils"
)

func (h *Handler) GetSchedulerStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, h.scheduler.GetStats())
}

func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Start(); err != nil {
		utils.Errorf("scheduler start failed err=%v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error starting scheduler")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"active": true})
}

func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"active": false})
}

func (h *Handler) TriggerScheduler(w http.ResponseWriter, r *http.Request) {
	// The pass outlives the request; publishes in flight finish even if
	// the caller hangs up.
	summary, err := h.scheduler.TriggerOnce(context.WithoutCancel(r.Context()))
	if errors.Is(err, services.ErrAlreadyRunning) {
		utils.RespondWithError(w, http.StatusConflict, "A scheduler pass is already running")
		return
	}
	if err != nil {
		utils.Errorf("manual scheduler pass failed err=%v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Scheduler pass failed")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) ResetSchedulerStats(w http.ResponseWriter, r *http.Request) {
	h.scheduler.ResetStats()
	utils.RespondWithJSON(w, http.StatusOK, h.scheduler.GetStats())
}

func (h *Handler) GetPublishingReport(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	report, err := h.scheduler.GetPublishingReport(r.Context(), hours)
	if err != nil {
		utils.Errorf("publishing report failed err=%v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error building report")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, report)
}

func (h *Handler) AutoManageScheduler(w http.ResponseWriter, r *http.Request) {
	active, err := h.scheduler.AutoManage(r.Context())
	if err != nil {
		utils.Errorf("scheduler auto-manage failed err=%v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error checking connected accounts")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"active": active})
}
