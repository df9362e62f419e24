package publishers

import (
	"encoding/json"
	"net/http"

	"SocialPublisher/models"
)

// graphErrorResponse is the error envelope shared by the Facebook and
// Instagram Graph APIs.
type graphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type graphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}

func parseGraphError(platform models.Platform, status int, body []byte) *APIError {
	apiErr := &APIError{Platform: platform, StatusCode: status, Body: body}

	var resp graphErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		apiErr.Code = resp.Error.Code
		apiErr.Subcode = resp.Error.ErrorSubcode
		apiErr.Message = resp.Error.Message
		return apiErr
	}

	apiErr.Message = http.StatusText(status)
	return apiErr
}
