package publishers

import (
	"net/url"
	"path"
	"strings"

	"SocialPublisher/models"

	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
)

// mediaKind resolves whether a reference points at an image or a video.
// The declared type wins, then the MIME type, then the file extension.
func mediaKind(m models.MediaRef) models.MediaType {
	switch m.Type {
	case models.MediaImage, models.MediaVideo:
		return m.Type
	}

	if mime := strings.ToLower(m.MimeType); mime != "" {
		if strings.HasPrefix(mime, "video/") {
			return models.MediaVideo
		}
		if strings.HasPrefix(mime, "image/") {
			return models.MediaImage
		}
	}

	if kind := kindFromExtension(m.URL); kind != ftypes.Unknown && kind.MIME.Type == "video" {
		return models.MediaVideo
	}
	return models.MediaImage
}

func kindFromExtension(raw string) ftypes.Type {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return ftypes.Unknown
	}
	return filetype.GetType(ext)
}

func allPreUploaded(media []models.MediaRef) bool {
	for _, m := range media {
		if m.ExternalID == "" {
			return false
		}
	}
	return true
}
