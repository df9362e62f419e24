package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"SocialPublisher/database"
	"SocialPublisher/middleware"
	"SocialPublisher/models"
	"SocialPublisher/utils"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type schedulePostRequest struct {
	AccountID     string     `json:"account_id"`
	Content       string     `json:"content"`
	MediaIDs      []string   `json:"media_ids"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

// SchedulePost queues a post on one of the caller's accounts. Without a
// date the post is due on the next pass.
func (h *Handler) SchedulePost(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req schedulePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if strings.TrimSpace(req.Content) == "" && len(req.MediaIDs) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Content or media is required")
		return
	}
	if req.AccountID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	account, err := h.store.GetAccount(r.Context(), req.AccountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		utils.Errorf("load account failed account=%s err=%v", req.AccountID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error loading account")
		return
	}
	if account.UserID != claims.UserID {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied to account")
		return
	}

	now := h.now()
	post := &models.Post{
		ID:            uuid.New().String(),
		UserID:        claims.UserID,
		AccountID:     account.ID,
		Platform:      account.Platform,
		Content:       req.Content,
		ScheduledDate: now,
		Status:        models.StatusScheduled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ScheduledDate != nil {
		post.ScheduledDate = *req.ScheduledDate
	}

	if len(req.MediaIDs) > 0 {
		mediaList, err := h.store.GetMediaByIDs(r.Context(), req.MediaIDs)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid media IDs")
			return
		}
		if len(mediaList) != len(req.MediaIDs) {
			utils.RespondWithError(w, http.StatusBadRequest, "Unknown media IDs")
			return
		}
		for _, media := range mediaList {
			if media.UserID != claims.UserID {
				utils.RespondWithError(w, http.StatusForbidden, "Access denied to media")
				return
			}
			post.Media = append(post.Media, media.Ref())
		}
	}

	if err := h.store.CreatePost(r.Context(), post, req.MediaIDs); err != nil {
		utils.Errorf("create post failed account=%s err=%v", account.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error creating post")
		return
	}

	utils.Infof("post scheduled post=%s account=%s platform=%s at=%s", post.ID, account.ID, account.Platform, post.ScheduledDate.Format(time.RFC3339))
	utils.RespondWithJSON(w, http.StatusCreated, post)
}

// RetryPost reschedules a failed post of the caller. Admins may retry any post.
func (h *Handler) RetryPost(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	postID := mux.Vars(r)["id"]

	post, err := h.store.GetPost(r.Context(), postID)
	if errors.Is(err, database.ErrPostNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		utils.Errorf("load post failed post=%s err=%v", postID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error loading post")
		return
	}
	if post.UserID != claims.UserID && !claims.IsAdmin() {
		utils.RespondWithError(w, http.StatusForbidden, "Access denied to post")
		return
	}

	retried, err := h.scheduler.RetryPost(r.Context(), postID)
	switch {
	case errors.Is(err, database.ErrPostNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Post not found")
	case errors.Is(err, database.ErrPostNotFailed):
		utils.RespondWithError(w, http.StatusConflict, "Only failed posts can be retried")
	case err != nil:
		utils.Errorf("retry post failed post=%s err=%v", postID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error retrying post")
	default:
		utils.RespondWithJSON(w, http.StatusOK, retried)
	}
}
