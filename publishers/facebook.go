package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"SocialPublisher/models"
	"SocialPublisher/utils"
)

const (
	facebookMaxLength     = 63206
	facebookUploadWorkers = 4
)

type FacebookPublisher struct {
	graphURL string
	api      *apiClient
	rules    contentRules
}

type facebookPageResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

type facebookAttachedMedia struct {
	MediaFBID string `json:"media_fbid"`
}

type facebookFeedRequest struct {
	Message       string                  `json:"message,omitempty"`
	AttachedMedia []facebookAttachedMedia `json:"attached_media,omitempty"`
}

type facebookPhotoRequest struct {
	URL       string `json:"url"`
	Message   string `json:"message,omitempty"`
	Published *bool  `json:"published,omitempty"`
}

type facebookVideoRequest struct {
	FileURL     string `json:"file_url"`
	Description string `json:"description,omitempty"`
}

// NewFacebookPublisher creates a Pages publisher against graphURL, which
// already carries the API version (e.g. https://graph.facebook.com/v19.0).
func NewFacebookPublisher(graphURL string, opts ClientOptions) *FacebookPublisher {
	return &FacebookPublisher{
		graphURL: strings.TrimRight(graphURL, "/"),
		api:      newAPIClient(models.Facebook, opts, parseGraphError),
		rules:    contentRules{maxLength: facebookMaxLength},
	}
}

func (f *FacebookPublisher) Platform() models.Platform { return models.Facebook }

func (f *FacebookPublisher) CheckCredentials(account *models.Account) error {
	if account == nil || account.Credentials.AccessToken == "" {
		return missingCredentials(models.Facebook, "access token")
	}
	return nil
}

func (f *FacebookPublisher) ValidateCredentials(ctx context.Context, account *models.Account) error {
	if err := f.CheckCredentials(account); err != nil {
		return err
	}
	_, err := f.api.get(ctx, request{
		url:     f.graphURL + "/me?fields=id,name",
		headers: bearer(account.Credentials.AccessToken),
	})
	return err
}

func (f *FacebookPublisher) Publish(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult {
	if err := f.CheckCredentials(account); err != nil {
		return failure(models.Facebook, err)
	}
	if err := f.rules.validate(models.Facebook, post); err != nil {
		return failure(models.Facebook, err)
	}

	pageToken, pageID, err := f.pageAccessToken(ctx, account.Credentials)
	if err != nil {
		return failure(models.Facebook, fmt.Errorf("getting page access token: %w", err))
	}

	utils.Infof("publishing to facebook post=%s account=%s page=%s media=%d", post.ID, account.ID, pageID, len(post.Media))

	var id string
	var raw []byte
	switch {
	case len(post.Media) == 0:
		id, raw, err = f.publishFeed(ctx, pageToken, pageID, post.Content, nil)
	case allPreUploaded(post.Media):
		ids := make([]string, 0, len(post.Media))
		for _, m := range post.Media {
			ids = append(ids, m.ExternalID)
		}
		id, raw, err = f.publishFeed(ctx, pageToken, pageID, post.Content, ids)
	case len(post.Media) == 1 && mediaKind(post.Media[0]) == models.MediaVideo:
		id, raw, err = f.publishVideo(ctx, pageToken, pageID, post.Media[0], post.Content)
	case len(post.Media) == 1:
		id, raw, err = f.publishPhoto(ctx, pageToken, pageID, post.Media[0], post.Content)
	default:
		id, raw, err = f.publishMultiplePhotos(ctx, pageToken, pageID, post)
	}
	if err != nil {
		return failure(models.Facebook, err)
	}

	return success(models.Facebook, id, raw)
}

// pageAccessToken returns the token and id of the page to publish on. A
// stored page id means the stored token is already a page token.
func (f *FacebookPublisher) pageAccessToken(ctx context.Context, c models.Credentials) (string, string, error) {
	if c.PageID != "" {
		return c.AccessToken, c.PageID, nil
	}

	resp, err := f.api.get(ctx, request{
		url:     f.graphURL + "/me/accounts",
		headers: bearer(c.AccessToken),
	})
	if err != nil {
		return "", "", err
	}

	var pages facebookPageResponse
	if err := json.Unmarshal(resp.Body, &pages); err != nil {
		return "", "", err
	}
	if len(pages.Data) == 0 {
		return "", "", fmt.Errorf("no Facebook pages found for this account (missing permission pages_manage_posts?)")
	}

	page := pages.Data[0]
	return page.AccessToken, page.ID, nil
}

func (f *FacebookPublisher) publishFeed(ctx context.Context, token, pageID, message string, mediaIDs []string) (string, []byte, error) {
	payload := facebookFeedRequest{Message: message}
	for _, id := range mediaIDs {
		payload.AttachedMedia = append(payload.AttachedMedia, facebookAttachedMedia{MediaFBID: id})
	}
	return f.postJSON(ctx, token, fmt.Sprintf("%s/%s/feed", f.graphURL, pageID), payload)
}

func (f *FacebookPublisher) publishPhoto(ctx context.Context, token, pageID string, media models.MediaRef, message string) (string, []byte, error) {
	return f.postJSON(ctx, token, fmt.Sprintf("%s/%s/photos", f.graphURL, pageID), facebookPhotoRequest{
		URL:     media.URL,
		Message: message,
	})
}

func (f *FacebookPublisher) publishVideo(ctx context.Context, token, pageID string, media models.MediaRef, description string) (string, []byte, error) {
	return f.postJSON(ctx, token, fmt.Sprintf("%s/%s/videos", f.graphURL, pageID), facebookVideoRequest{
		FileURL:     media.URL,
		Description: description,
	})
}

// publishMultiplePhotos uploads every image unpublished, then attaches the
// resulting photo ids to a single feed post.
func (f *FacebookPublisher) publishMultiplePhotos(ctx context.Context, token, pageID string, post *models.Post) (string, []byte, error) {
	for _, m := range post.Media {
		if mediaKind(m) == models.MediaVideo {
			return "", nil, unsupportedMedia(models.Facebook, "videos cannot be combined with other media in one post")
		}
	}

	photoIDs := make([]string, len(post.Media))
	unpublished := false
	sem := make(chan struct{}, facebookUploadWorkers)
	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for i, media := range post.Media {
		if media.ExternalID != "" {
			photoIDs[i] = media.ExternalID
			continue
		}
		wg.Add(1)
		go func(idx int, m models.MediaRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			id, _, err := f.postJSON(ctx, token, fmt.Sprintf("%s/%s/photos", f.graphURL, pageID), facebookPhotoRequest{
				URL:       m.URL,
				Published: &unpublished,
			})
			if err != nil {
				select {
				case errCh <- fmt.Errorf("uploading photo %d: %w", idx+1, err):
				default:
				}
				return
			}
			photoIDs[idx] = id
		}(i, media)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return "", nil, err
	default:
	}

	return f.publishFeed(ctx, token, pageID, post.Content, photoIDs)
}

func (f *FacebookPublisher) postJSON(ctx context.Context, token, url string, payload any) (string, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, err
	}

	resp, err := f.api.post(ctx, request{
		url:         url,
		body:        body,
		contentType: "application/json",
		headers:     bearer(token),
	})
	if err != nil {
		return "", nil, err
	}

	var created graphIDResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return "", nil, fmt.Errorf("decoding Facebook response: %w", err)
	}
	if created.PostID != "" {
		return created.PostID, resp.Body, nil
	}
	if created.ID == "" {
		return "", nil, fmt.Errorf("Facebook response did not include an id")
	}
	return created.ID, resp.Body, nil
}
