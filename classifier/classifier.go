// Package classifier maps raw publish and health-check failures onto the
// fixed set of error categories used by the retry policy.
//
// Classification is pure: it never performs I/O, never panics and always
// returns one of models.AllErrorCategories.
package classifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"SocialPublisher/models"
)

// Categorized is implemented by errors that already know their category,
// such as local validation failures raised before any network call.
type Categorized interface {
	ErrorCategory() models.ErrorCategory
}

// StatusCoder exposes the transport status code of a failed API call.
type StatusCoder interface {
	HTTPStatus() int
}

// PlatformCoder exposes a platform specific numeric error code.
type PlatformCoder interface {
	PlatformCode() int
}

// Graph API (Facebook/Instagram) error codes.
var graphErrorCodes = map[int]models.ErrorCategory{
	1:    models.ErrorNetwork, // unknown, retryable per Graph docs
	2:    models.ErrorNetwork, // service temporarily unavailable
	4:    models.ErrorRateLimit,
	17:   models.ErrorRateLimit,
	32:   models.ErrorRateLimit,
	613:  models.ErrorRateLimit,
	102:  models.ErrorAuthentication,
	190:  models.ErrorAuthentication,
	463:  models.ErrorAuthentication,
	467:  models.ErrorAuthentication,
	10:   models.ErrorPermissions,
	506:  models.ErrorDuplicateContent,
	368:  models.ErrorContentPolicy,
	9004: models.ErrorContentPolicy, // media could not be fetched
	352:  models.ErrorContentPolicy, // unsupported video format
	// Twitter v1.1 codes surfaced by some v2 endpoints.
	88:  models.ErrorRateLimit,
	89:  models.ErrorAuthentication,
	187: models.ErrorDuplicateContent,
	226: models.ErrorContentPolicy,
}

var (
	rateLimitKeywords = []string{
		"rate limit", "rate-limit", "ratelimit", "too many requests", "throttl",
		"quota exceeded", "request limit reached", "limit reached",
	}
	duplicateKeywords = []string{
		"duplicate", "already posted", "already been posted", "already published",
	}
	contentPolicyKeywords = []string{
		"content policy", "policy violation", "violat", "community guidelines",
		"community standards", "spam", "inappropriate", "content too long",
		"media required", "media could not be processed",
	}
	permissionKeywords = []string{
		"permission", "insufficient scope", "missing scope", "not authorized to perform",
		"access denied",
	}
	authenticationKeywords = []string{
		"token", "unauthorized", "unauthorised", "authentication", "invalid credentials",
		"oauth", "session has expired", "session has been invalidated", "login required",
		"could not authenticate",
	}
	networkKeywords = []string{
		"timeout", "timed out", "deadline exceeded", "connection reset", "econnreset",
		"connection refused", "econnrefused", "no such host", "network is unreachable",
		"unexpected eof", "broken pipe", "temporarily unavailable", "service unavailable",
		"bad gateway", "gateway timeout", "tls handshake",
	}
)

// Classify maps err onto an error category. A nil error is unknown.
func Classify(err error) models.ErrorCategory {
	if err == nil {
		return models.ErrorUnknown
	}

	var categorized Categorized
	if errors.As(err, &categorized) {
		if category := categorized.ErrorCategory(); isKnown(category) {
			return category
		}
	}

	// Cancellation comes from the caller giving up, not from the platform.
	if errors.Is(err, context.Canceled) {
		return models.ErrorUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorNetwork
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return models.ErrorNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.ErrorNetwork
	}

	var coder PlatformCoder
	if errors.As(err, &coder) {
		code := coder.PlatformCode()
		if category, ok := graphErrorCodes[code]; ok {
			return category
		}
		if code >= 200 && code <= 299 {
			return models.ErrorPermissions
		}
	}

	status := 0
	var statusCoder StatusCoder
	if errors.As(err, &statusCoder) {
		status = statusCoder.HTTPStatus()
	}

	return ClassifyMessage(err.Error(), status)
}

// ClassifyMessage classifies a free-text error and an optional transport
// status code (0 when unknown).
func ClassifyMessage(message string, statusCode int) models.ErrorCategory {
	msg := strings.ToLower(message)

	if statusCode == http.StatusTooManyRequests || containsAny(msg, rateLimitKeywords) {
		return models.ErrorRateLimit
	}
	if containsAny(msg, duplicateKeywords) {
		return models.ErrorDuplicateContent
	}
	if containsAny(msg, contentPolicyKeywords) {
		return models.ErrorContentPolicy
	}
	if containsAny(msg, permissionKeywords) {
		return models.ErrorPermissions
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden || containsAny(msg, authenticationKeywords) {
		return models.ErrorAuthentication
	}
	if isTransientStatus(statusCode) || containsAny(msg, networkKeywords) || msg == "eof" || strings.HasSuffix(msg, ": eof") {
		return models.ErrorNetwork
	}

	return models.ErrorUnknown
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isKnown(category models.ErrorCategory) bool {
	for _, c := range models.AllErrorCategories {
		if c == category {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
