package services

import (
	"fmt"
	"time"

	"SocialPublisher/models"
)

type PostAction int

const (
	PostFail PostAction = iota
	PostPostpone
)

type AccountAction int

const (
	AccountNone AccountAction = iota
	AccountNeedsReconnection
	AccountDisconnect
	AccountUnhealthy
)

func (a AccountAction) String() string {
	switch a {
	case AccountNeedsReconnection:
		return "needs_reconnection"
	case AccountDisconnect:
		return "disconnect"
	case AccountUnhealthy:
		return "unhealthy"
	default:
		return "none"
	}
}

// Disposition is what happens to a post and its account after a failure.
type Disposition struct {
	Category models.ErrorCategory
	Post     PostAction
	// Delay is set for postponements only.
	Delay   time.Duration
	Account AccountAction
	Reason  string
	// Detail is the raw error message the reason was built from.
	Detail string
}

// Policy maps error categories onto dispositions.
type Policy struct {
	RateLimitDelay time.Duration
	NetworkDelay   time.Duration
}

func NewPolicy(rateLimitDelay, networkDelay time.Duration) Policy {
	if rateLimitDelay <= 0 {
		rateLimitDelay = 15 * time.Minute
	}
	if networkDelay <= 0 {
		networkDelay = 5 * time.Minute
	}
	return Policy{RateLimitDelay: rateLimitDelay, NetworkDelay: networkDelay}
}

func (p Policy) Decide(category models.ErrorCategory, platform models.Platform, message string) Disposition {
	name := platform.DisplayName()
	d := Disposition{Category: category, Post: PostFail, Account: AccountNone, Detail: message}

	switch category {
	case models.ErrorRateLimit:
		d.Post = PostPostpone
		d.Delay = p.RateLimitDelay
		d.Reason = fmt.Sprintf("Rate limited by %s, retrying in %s: %s", name, humanDelay(d.Delay), message)
	case models.ErrorNetwork:
		d.Post = PostPostpone
		d.Delay = p.NetworkDelay
		d.Reason = fmt.Sprintf("Could not reach %s, retrying in %s: %s", name, humanDelay(d.Delay), message)
	case models.ErrorAuthentication:
		d.Account = AccountNeedsReconnection
		d.Reason = fmt.Sprintf("%s authentication failed (token expired or revoked). Reconnect the account and retry: %s", name, message)
	case models.ErrorPermissions:
		d.Account = AccountNeedsReconnection
		d.Reason = fmt.Sprintf("%s permissions are missing. Reconnect the account and grant publishing access: %s", name, message)
	case models.ErrorDuplicateContent:
		d.Reason = fmt.Sprintf("%s rejected the post as duplicate content: %s", name, message)
	case models.ErrorContentPolicy:
		d.Reason = fmt.Sprintf("%s rejected the content: %s", name, message)
	default:
		d.Category = models.ErrorUnknown
		d.Account = AccountDisconnect
		d.Reason = fmt.Sprintf("Publishing to %s failed and the account was disconnected: %s", name, message)
	}

	return d
}

func humanDelay(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
