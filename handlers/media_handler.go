package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"

	"SocialPublisher/database"
	"SocialPublisher/middleware"
	"SocialPublisher/models"
	"SocialPublisher/utils"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
)

type registerMediaRequest struct {
	URL        string           `json:"url"`
	Type       models.MediaType `json:"type"`
	MimeType   string           `json:"mime_type"`
	ExternalID string           `json:"external_id"`
}

// RegisterMedia records a hosted asset so posts can reference it. The kind
// is taken from the request or guessed from the URL's extension.
func (h *Handler) RegisterMedia(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req registerMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if req.ExternalID == "" {
			utils.RespondWithError(w, http.StatusBadRequest, "A public http(s) URL or an external_id is required")
			return
		}
	}

	media := &database.Media{
		ID:         uuid.New().String(),
		UserID:     claims.UserID,
		URL:        req.URL,
		Type:       req.Type,
		MimeType:   req.MimeType,
		ExternalID: req.ExternalID,
	}
	if u != nil {
		guessMediaKind(media, path.Ext(u.Path))
	}

	switch media.Type {
	case models.MediaImage, models.MediaVideo:
	default:
		utils.RespondWithError(w, http.StatusBadRequest, "Media type must be image or video")
		return
	}

	if err := h.store.CreateMedia(r.Context(), media); err != nil {
		utils.Errorf("create media failed user=%s err=%v", claims.UserID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Error saving media")
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, map[string]any{"id": media.ID, "media": media.Ref()})
}

func guessMediaKind(media *database.Media, ext string) {
	if media.Type == "" && media.MimeType != "" {
		switch {
		case strings.HasPrefix(media.MimeType, "video/"):
			media.Type = models.MediaVideo
		case strings.HasPrefix(media.MimeType, "image/"):
			media.Type = models.MediaImage
		}
	}

	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return
	}
	kind := filetype.GetType(ext)
	if kind == ftypes.Unknown {
		return
	}
	if media.MimeType == "" {
		media.MimeType = kind.MIME.Value
	}
	if media.Type == "" {
		switch kind.MIME.Type {
		case "video":
			media.Type = models.MediaVideo
		case "image":
			media.Type = models.MediaImage
		}
	}
}
