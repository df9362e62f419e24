package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SocialPublisher/classifier"
	"SocialPublisher/models"
	"SocialPublisher/utils"
)

const (
	instagramMaxLength   = 2200
	instagramMaxCarousel = 10
)

const (
	containerFinished   = "FINISHED"
	containerInProgress = "IN_PROGRESS"
)

var (
	ErrContainerTimeout  = errors.New("media container processing timed out")
	ErrNoMediaContainers = errors.New("no media containers were created")
)

// ContainerError reports a media container that could not be created or
// did not reach the FINISHED state.
type ContainerError struct {
	ContainerID string
	Status      string
	Err         error
}

func (e *ContainerError) Error() string {
	switch {
	case e.Err != nil && e.ContainerID != "":
		return fmt.Sprintf("media container %s: %v", e.ContainerID, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return fmt.Sprintf("media container %s could not be processed (status %s)", e.ContainerID, e.Status)
	}
}

func (e *ContainerError) Unwrap() error { return e.Err }

// ErrorCategory keeps transport level categories of the cause and treats
// everything else as a problem with the media itself. A carousel left
// without any container is always a content failure.
func (e *ContainerError) ErrorCategory() models.ErrorCategory {
	if errors.Is(e.Err, ErrNoMediaContainers) {
		return models.ErrorContentPolicy
	}
	if e.Err != nil {
		if category := classifier.Classify(e.Err); category != models.ErrorUnknown {
			return category
		}
	}
	return models.ErrorContentPolicy
}

type InstagramConfig struct {
	GraphURL     string
	PollInterval time.Duration
	ImageMaxWait time.Duration
	VideoMaxWait time.Duration
}

type InstagramPublisher struct {
	cfg   InstagramConfig
	api   *apiClient
	rules contentRules
}

type instagramContainerRequest struct {
	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	IsCarouselItem bool   `json:"is_carousel_item,omitempty"`
	Children       string `json:"children,omitempty"`
	Caption        string `json:"caption,omitempty"`
}

type instagramStatusResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

func NewInstagramPublisher(cfg InstagramConfig, opts ClientOptions) *InstagramPublisher {
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ImageMaxWait <= 0 {
		cfg.ImageMaxWait = time.Minute
	}
	if cfg.VideoMaxWait <= 0 {
		cfg.VideoMaxWait = 5 * time.Minute
	}
	return &InstagramPublisher{
		cfg:   cfg,
		api:   newAPIClient(models.Instagram, opts, parseGraphError),
		rules: contentRules{maxLength: instagramMaxLength, requireMedia: true, maxMedia: instagramMaxCarousel},
	}
}

func (p *InstagramPublisher) Platform() models.Platform { return models.Instagram }

func (p *InstagramPublisher) CheckCredentials(account *models.Account) error {
	if account == nil || account.Credentials.AccessToken == "" {
		return missingCredentials(models.Instagram, "access token")
	}
	return nil
}

func (p *InstagramPublisher) ValidateCredentials(ctx context.Context, account *models.Account) error {
	if err := p.CheckCredentials(account); err != nil {
		return err
	}
	_, err := p.api.get(ctx, request{
		url:     fmt.Sprintf("%s/%s?fields=id,username", p.cfg.GraphURL, igUserID(account.Credentials)),
		headers: bearer(account.Credentials.AccessToken),
	})
	return err
}

func (p *InstagramPublisher) Publish(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult {
	if err := p.CheckCredentials(account); err != nil {
		return failure(models.Instagram, err)
	}
	if err := p.rules.validate(models.Instagram, post); err != nil {
		return failure(models.Instagram, err)
	}

	s := &instagramSession{p: p, userID: igUserID(account.Credentials), token: account.Credentials.AccessToken}

	utils.Infof("publishing to instagram post=%s account=%s media=%d", post.ID, account.ID, len(post.Media))

	var containerID string
	var err error
	if len(post.Media) == 1 {
		containerID, err = s.prepareSingle(ctx, post.Media[0], post.Content)
	} else {
		containerID, err = s.prepareCarousel(ctx, post)
	}
	if err != nil {
		return failure(models.Instagram, err)
	}

	id, raw, err := s.publish(ctx, containerID)
	if err != nil {
		return failure(models.Instagram, err)
	}
	return success(models.Instagram, id, raw)
}

func igUserID(c models.Credentials) string {
	if c.InstagramUserID != "" {
		return c.InstagramUserID
	}
	return "me"
}

// instagramSession holds the per-publish state of the container workflow.
type instagramSession struct {
	p      *InstagramPublisher
	userID string
	token  string
}

func (s *instagramSession) prepareSingle(ctx context.Context, media models.MediaRef, caption string) (string, error) {
	kind := mediaKind(media)
	req := instagramContainerRequest{Caption: caption}
	if kind == models.MediaVideo {
		req.VideoURL = media.URL
		req.MediaType = "REELS"
	} else {
		req.ImageURL = media.URL
	}

	id, err := s.createContainer(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.waitForContainer(ctx, id, s.p.maxWait(kind)); err != nil {
		return "", err
	}
	return id, nil
}

// prepareCarousel creates one container per asset, waits for each and then
// creates the carousel container. Assets that fail are skipped.
func (s *instagramSession) prepareCarousel(ctx context.Context, post *models.Post) (string, error) {
	type item struct {
		id    string
		media models.MediaRef
	}

	var created []item
	var firstErr error
	for i, m := range post.Media {
		kind := mediaKind(m)
		req := instagramContainerRequest{IsCarouselItem: true}
		if kind == models.MediaVideo {
			req.VideoURL = m.URL
			req.MediaType = "VIDEO"
		} else {
			req.ImageURL = m.URL
		}

		id, err := s.createContainer(ctx, req)
		if err != nil {
			utils.Warnf("instagram carousel item skipped post=%s item=%d err=%v", post.ID, i+1, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		created = append(created, item{id: id, media: m})
	}

	var ready []item
	for _, it := range created {
		if err := s.waitForContainer(ctx, it.id, s.p.maxWait(mediaKind(it.media))); err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			utils.Warnf("instagram carousel item not ready post=%s container=%s err=%v", post.ID, it.id, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ready = append(ready, it)
	}

	switch len(ready) {
	case 0:
		if firstErr == nil {
			return "", &ContainerError{Err: ErrNoMediaContainers}
		}
		return "", &ContainerError{Err: fmt.Errorf("%w: %w", ErrNoMediaContainers, firstErr)}
	case 1:
		// A carousel needs at least two children; items are not publishable
		// on their own, so the surviving asset gets a regular container.
		utils.Infof("instagram carousel reduced to single media post=%s", post.ID)
		return s.prepareSingle(ctx, ready[0].media, post.Content)
	}

	children := make([]string, 0, len(ready))
	for _, it := range ready {
		children = append(children, it.id)
	}

	id, err := s.createContainer(ctx, instagramContainerRequest{
		MediaType: "CAROUSEL",
		Children:  strings.Join(children, ","),
		Caption:   post.Content,
	})
	if err != nil {
		return "", err
	}
	if err := s.waitForContainer(ctx, id, s.p.cfg.ImageMaxWait); err != nil {
		return "", err
	}
	return id, nil
}

func (s *instagramSession) createContainer(ctx context.Context, req instagramContainerRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := s.p.api.post(ctx, request{
		url:         fmt.Sprintf("%s/%s/media", s.p.cfg.GraphURL, s.userID),
		body:        body,
		contentType: "application/json",
		headers:     bearer(s.token),
	})
	if err != nil {
		return "", &ContainerError{Err: fmt.Errorf("creating container: %w", err)}
	}

	var created graphIDResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil || created.ID == "" {
		return "", &ContainerError{Err: fmt.Errorf("creating container: unexpected response %q", string(resp.Body))}
	}
	return created.ID, nil
}

// waitForContainer polls the container status until it is FINISHED. Any
// status other than IN_PROGRESS, and any failed status request, is an error.
func (s *instagramSession) waitForContainer(ctx context.Context, id string, maxWait time.Duration) error {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := s.containerStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("waiting for media container %s: %w", id, ctx.Err())
			}
			return &ContainerError{ContainerID: id, Err: err}
		}

		switch status {
		case containerFinished:
			return nil
		case containerInProgress:
		default:
			// ERROR, EXPIRED and anything unrecognised.
			return &ContainerError{ContainerID: id, Status: status}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for media container %s: %w", id, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: container %s not ready after %s", ErrContainerTimeout, id, maxWait)
		case <-ticker.C:
		}
	}
}

func (s *instagramSession) containerStatus(ctx context.Context, id string) (string, error) {
	resp, err := s.p.api.get(ctx, request{
		url:     fmt.Sprintf("%s/%s?fields=status_code,status", s.p.cfg.GraphURL, id),
		headers: bearer(s.token),
	})
	if err != nil {
		return "", err
	}

	var st instagramStatusResponse
	if err := json.Unmarshal(resp.Body, &st); err != nil {
		return "", fmt.Errorf("decoding container status: %w", err)
	}
	return st.StatusCode, nil
}

func (s *instagramSession) publish(ctx context.Context, containerID string) (string, []byte, error) {
	body, err := json.Marshal(map[string]string{"creation_id": containerID})
	if err != nil {
		return "", nil, err
	}

	resp, err := s.p.api.post(ctx, request{
		url:         fmt.Sprintf("%s/%s/media_publish", s.p.cfg.GraphURL, s.userID),
		body:        body,
		contentType: "application/json",
		headers:     bearer(s.token),
	})
	if err != nil {
		return "", nil, err
	}

	var published graphIDResponse
	if err := json.Unmarshal(resp.Body, &published); err != nil || published.ID == "" {
		return "", nil, fmt.Errorf("Instagram publish returned no media id: %s", string(resp.Body))
	}
	return published.ID, resp.Body, nil
}

func (p *InstagramPublisher) maxWait(kind models.MediaType) time.Duration {
	if kind == models.MediaVideo {
		return p.cfg.VideoMaxWait
	}
	return p.cfg.ImageMaxWait
}
