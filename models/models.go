package models

import "time"

type Platform string

const (
	Twitter   Platform = "twitter"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
)

// DisplayName is the human readable network name used in reasons and reports.
func (p Platform) DisplayName() string {
	switch p {
	case Twitter:
		return "Twitter"
	case Facebook:
		return "Facebook"
	case Instagram:
		return "Instagram"
	default:
		return string(p)
	}
}

type PostStatus string

const (
	StatusScheduled PostStatus = "scheduled"
	StatusPublished PostStatus = "published"
	StatusFailed    PostStatus = "failed"
)

type SyncStatus string

const (
	SyncSuccess           SyncStatus = "success"
	SyncFailed            SyncStatus = "failed"
	SyncError             SyncStatus = "error"
	SyncDisconnected      SyncStatus = "disconnected"
	SyncNeedsReconnection SyncStatus = "needs_reconnection"
	SyncStale             SyncStatus = "stale"
	SyncPending           SyncStatus = "pending"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// ErrorCategory is the closed set of failure classes a publish or health
// check error is mapped to before any disposition is applied.
type ErrorCategory string

const (
	ErrorRateLimit        ErrorCategory = "rate_limit"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorPermissions      ErrorCategory = "permissions"
	ErrorNetwork          ErrorCategory = "network"
	ErrorDuplicateContent ErrorCategory = "duplicate_content"
	ErrorContentPolicy    ErrorCategory = "content_policy"
	ErrorUnknown          ErrorCategory = "unknown"
)

var AllErrorCategories = []ErrorCategory{
	ErrorRateLimit,
	ErrorAuthentication,
	ErrorPermissions,
	ErrorNetwork,
	ErrorDuplicateContent,
	ErrorContentPolicy,
	ErrorUnknown,
}

// MediaRef points at an asset attached to a post. ExternalID holds a
// platform-side id when the asset was uploaded ahead of time.
type MediaRef struct {
	URL        string    `json:"url,omitempty"`
	Type       MediaType `json:"type,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
}

type Post struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	AccountID      string     `json:"account_id"`
	Platform       Platform   `json:"platform"`
	Content        string     `json:"content"`
	Media          []MediaRef `json:"media,omitempty"`
	ScheduledDate  time.Time  `json:"scheduled_date"`
	Status         PostStatus `json:"status"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	PublishError   string     `json:"publish_error,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Credentials is the decrypted credential bundle of an account. Which
// fields are required depends on the platform.
type Credentials struct {
	AccessToken       string `json:"access_token,omitempty"`
	AccessTokenSecret string `json:"access_token_secret,omitempty"`
	ConsumerKey       string `json:"consumer_key,omitempty"`
	ConsumerSecret    string `json:"consumer_secret,omitempty"`
	PageID            string `json:"page_id,omitempty"`
	InstagramUserID   string `json:"instagram_user_id,omitempty"`
}

type Account struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	Platform          Platform    `json:"platform"`
	DisplayName       string      `json:"display_name"`
	Credentials       Credentials `json:"-"`
	Connected         bool        `json:"connected"`
	ConnectionHealthy bool        `json:"connection_healthy"`
	SyncStatus        SyncStatus  `json:"sync_status"`
	SyncError         string      `json:"sync_error,omitempty"`
	LastSyncedAt      *time.Time  `json:"last_synced_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// PublishResult is what a platform adapter reports for one attempt.
type PublishResult struct {
	Platform      Platform      `json:"platform"`
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	PostID        string        `json:"post_id,omitempty"`
	PublishedAt   time.Time     `json:"published_at,omitempty"`
	Raw           []byte        `json:"-"`
	Err           error         `json:"-"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
}

// HealthStatus is the outcome of a connection health check.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message,omitempty"`
	Category  ErrorCategory `json:"category,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Cached    bool          `json:"cached"`
}

type ReportEntry struct {
	PostID         string     `json:"post_id"`
	Platform       Platform   `json:"platform"`
	AccountName    string     `json:"account_name"`
	Content        string     `json:"content"`
	ScheduledDate  time.Time  `json:"scheduled_date"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	ExternalPostID string     `json:"external_post_id,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

type PublishingReport struct {
	WindowHours int           `json:"window_hours"`
	Since       time.Time     `json:"since"`
	GeneratedAt time.Time     `json:"generated_at"`
	Published   []ReportEntry `json:"published"`
	Failed      []ReportEntry `json:"failed"`
	Upcoming    []ReportEntry `json:"upcoming"`
}

type StatsSnapshot struct {
	TotalRuns              int64      `json:"total_runs"`
	PostsProcessed         int64      `json:"posts_processed"`
	PostsPublished         int64      `json:"posts_published"`
	PostsFailed            int64      `json:"posts_failed"`
	PostsPostponed         int64      `json:"posts_postponed"`
	RateLimitErrors        int64      `json:"rate_limit_errors"`
	AuthenticationErrors   int64      `json:"authentication_errors"`
	PermissionErrors       int64      `json:"permission_errors"`
	NetworkErrors          int64      `json:"network_errors"`
	DuplicateContentErrors int64      `json:"duplicate_content_errors"`
	ContentPolicyErrors    int64      `json:"content_policy_errors"`
	UnknownErrors          int64      `json:"unknown_errors"`
	IsRunning              bool       `json:"is_running"`
	IsActive               bool       `json:"is_active"`
	IsInitialized          bool       `json:"is_initialized"`
	LastRunTime            *time.Time `json:"last_run_time,omitempty"`
	CacheSize              int        `json:"cache_size"`
	SuccessRate            string     `json:"success_rate"`
}
