package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"SocialPublisher/models"
	"SocialPublisher/utils"

	"github.com/dghubble/oauth1"
)

const (
	twitterMaxLength = 280
	twitterMaxMedia  = 4
)

type TwitterPublisher struct {
	baseURL string
	base    *http.Client
	api     *apiClient
	rules   contentRules
}

type twitterTweetRequest struct {
	Text  string             `json:"text"`
	Media *twitterTweetMedia `json:"media,omitempty"`
}

type twitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type twitterDataResponse struct {
	Data struct {
		ID       string `json:"id"`
		Text     string `json:"text,omitempty"`
		Username string `json:"username,omitempty"`
	} `json:"data"`
}

type twitterErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
	Errors []struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"errors"`
}

// NewTwitterPublisher creates a publisher for the v2 API rooted at baseURL.
func NewTwitterPublisher(baseURL string, opts ClientOptions) *TwitterPublisher {
	opts = opts.normalize()
	return &TwitterPublisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    opts.HTTPClient,
		api:     newAPIClient(models.Twitter, opts, parseTwitterError),
		rules:   contentRules{maxLength: twitterMaxLength, maxMedia: twitterMaxMedia},
	}
}

func (t *TwitterPublisher) Platform() models.Platform { return models.Twitter }

func (t *TwitterPublisher) CheckCredentials(account *models.Account) error {
	if account == nil {
		return missingCredentials(models.Twitter, "account")
	}
	c := account.Credentials
	var missing []string
	if c.ConsumerKey == "" {
		missing = append(missing, "consumer key")
	}
	if c.ConsumerSecret == "" {
		missing = append(missing, "consumer secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access token")
	}
	if c.AccessTokenSecret == "" {
		missing = append(missing, "access token secret")
	}
	if len(missing) > 0 {
		return missingCredentials(models.Twitter, missing...)
	}
	return nil
}

func (t *TwitterPublisher) ValidateCredentials(ctx context.Context, account *models.Account) error {
	if err := t.CheckCredentials(account); err != nil {
		return err
	}

	resp, err := t.api.get(ctx, request{
		url:    t.baseURL + "/2/users/me",
		client: t.signingClient(ctx, account.Credentials),
	})
	if err != nil {
		return err
	}

	var me twitterDataResponse
	if err := json.Unmarshal(resp.Body, &me); err != nil {
		return fmt.Errorf("decoding Twitter user: %w", err)
	}
	utils.Debugf("twitter credentials ok account=%s user=%s", account.ID, me.Data.Username)
	return nil
}

func (t *TwitterPublisher) Publish(ctx context.Context, post *models.Post, account *models.Account) models.PublishResult {
	if err := t.CheckCredentials(account); err != nil {
		return failure(models.Twitter, err)
	}
	if err := t.rules.validate(models.Twitter, post); err != nil {
		return failure(models.Twitter, err)
	}

	tweet := twitterTweetRequest{Text: post.Content}
	if len(post.Media) > 0 {
		if !allPreUploaded(post.Media) {
			return failure(models.Twitter, unsupportedMedia(models.Twitter, "media must be uploaded to Twitter before scheduling"))
		}
		ids := make([]string, 0, len(post.Media))
		for _, m := range post.Media {
			ids = append(ids, m.ExternalID)
		}
		tweet.Media = &twitterTweetMedia{MediaIDs: ids}
	}

	payload, err := json.Marshal(tweet)
	if err != nil {
		return failure(models.Twitter, err)
	}

	utils.Infof("publishing to twitter post=%s account=%s media=%d", post.ID, account.ID, len(post.Media))

	resp, err := t.api.post(ctx, request{
		url:         t.baseURL + "/2/tweets",
		body:        payload,
		contentType: "application/json",
		client:      t.signingClient(ctx, account.Credentials),
	})
	if err != nil {
		return failure(models.Twitter, err)
	}

	var created twitterDataResponse
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return failure(models.Twitter, fmt.Errorf("decoding tweet response: %w", err))
	}
	if created.Data.ID == "" {
		return failure(models.Twitter, fmt.Errorf("Twitter response did not include a tweet id"))
	}

	return success(models.Twitter, created.Data.ID, resp.Body)
}

// signingClient returns a client that signs every request with the
// account's OAuth 1.0a user context.
func (t *TwitterPublisher) signingClient(ctx context.Context, c models.Credentials) *http.Client {
	cfg := oauth1.NewConfig(c.ConsumerKey, c.ConsumerSecret)
	base := context.WithValue(ctx, oauth1.HTTPClient, t.base)
	return cfg.Client(base, oauth1.NewToken(c.AccessToken, c.AccessTokenSecret))
}

func parseTwitterError(platform models.Platform, status int, body []byte) *APIError {
	apiErr := &APIError{Platform: platform, StatusCode: status, Body: body}

	var resp twitterErrorResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		switch {
		case resp.Detail != "":
			apiErr.Message = resp.Detail
		case len(resp.Errors) > 0:
			apiErr.Message = resp.Errors[0].Message
		case resp.Title != "":
			apiErr.Message = resp.Title
		}
		if len(resp.Errors) > 0 {
			apiErr.Code = resp.Errors[0].Code
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
