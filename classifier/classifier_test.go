package classifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"SocialPublisher/models"

	"github.com/stretchr/testify/assert"
)

type fakeAPIError struct {
	status int
	code   int
	msg    string
}

func (e *fakeAPIError) Error() string { return e.msg }
func (e *fakeAPIError) HTTPStatus() int { return e.status }
func (e *fakeAPIError) PlatformCode() int { return e.code }

type fakeLocalError struct{ category models.ErrorCategory }

func (e *fakeLocalError) Error() string { return "local validation failed" }
func (e *fakeLocalError) ErrorCategory() models.ErrorCategory { return e.category }

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		status   int
		expected models.ErrorCategory
	}{
		{"429 status", "slow down", 429, models.ErrorRateLimit},
		{"rate limit keyword", "Rate limit exceeded", 0, models.ErrorRateLimit},
		{"graph request limit", "(#4) Application request limit reached", 400, models.ErrorRateLimit},
		{"401 status", "nope", 401, models.ErrorAuthentication},
		{"403 status without keywords", "forbidden", 403, models.ErrorAuthentication},
		{"token keyword", "Error validating access token: Session has expired", 400, models.ErrorAuthentication},
		{"unauthorized keyword", "Unauthorized", 0, models.ErrorAuthentication},
		{"permission keyword", "(#200) The user hasn't authorized the application to perform this action: missing permission", 403, models.ErrorPermissions},
		{"duplicate wins over 403", "You are not allowed to create a Tweet with duplicate content.", 403, models.ErrorDuplicateContent},
		{"already posted", "this status was already posted", 0, models.ErrorDuplicateContent},
		{"policy", "Content violates our community guidelines", 400, models.ErrorContentPolicy},
		{"spam", "This request looks like it might be automated spam", 403, models.ErrorContentPolicy},
		{"timeout keyword", "request timed out", 0, models.ErrorNetwork},
		{"connection reset", "read tcp 10.0.0.1:443: connection reset by peer", 0, models.ErrorNetwork},
		{"bare eof", "EOF", 0, models.ErrorNetwork},
		{"503", "upstream", 503, models.ErrorNetwork},
		{"unmatched", "something odd happened", 400, models.ErrorUnknown},
		{"empty", "", 0, models.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyMessage(tt.message, tt.status))
		})
	}
}

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected models.ErrorCategory
	}{
		{"nil", nil, models.ErrorUnknown},
		{"deadline", fmt.Errorf("publish: %w", context.DeadlineExceeded), models.ErrorNetwork},
		{"canceled is not a network failure", fmt.Errorf("get: %w", context.Canceled), models.ErrorUnknown},
		{"econnreset", fmt.Errorf("dial: %w", syscall.ECONNRESET), models.ErrorNetwork},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutError{}}, models.ErrorNetwork},
		{"graph code 190", &fakeAPIError{status: 400, code: 190, msg: "Invalid session"}, models.ErrorAuthentication},
		{"graph code 32", &fakeAPIError{status: 400, code: 32, msg: "Page request limited"}, models.ErrorRateLimit},
		{"graph code 10", &fakeAPIError{status: 400, code: 10, msg: "Application does not have capability"}, models.ErrorPermissions},
		{"graph code 2xx range", &fakeAPIError{status: 400, code: 230, msg: "Requires pages_messaging"}, models.ErrorPermissions},
		{"graph code 506", &fakeAPIError{status: 400, code: 506, msg: "Duplicate status message"}, models.ErrorDuplicateContent},
		{"twitter code 187", &fakeAPIError{status: 403, code: 187, msg: "Status is a duplicate."}, models.ErrorDuplicateContent},
		{"status only", &fakeAPIError{status: 429, msg: "x"}, models.ErrorRateLimit},
		{"wrapped status", fmt.Errorf("creating tweet: %w", &fakeAPIError{status: 401, msg: "x"}), models.ErrorAuthentication},
		{"local category", &fakeLocalError{category: models.ErrorContentPolicy}, models.ErrorContentPolicy},
		{"local invalid category falls through", &fakeLocalError{category: "bogus"}, models.ErrorUnknown},
		{"plain", errors.New("mystery"), models.ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	inputs := []string{"", " ", "\x00", "🔥", "token rate limit duplicate"}
	for _, in := range inputs {
		got := ClassifyMessage(in, -1)
		assert.Contains(t, models.AllErrorCategories, got)
	}
}
