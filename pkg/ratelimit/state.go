// Package ratelimit implements error rate limit tracking and request gating
// for the notifications API. It follows the X-Error-Limit-Remain and
// X-Error-Limit-Reset response headers so a scrolling client stops issuing
// page requests before the server starts rejecting it.
package ratelimit

import (
	"time"
)

// Response headers carrying the error limit window.
const (
	HeaderErrorLimitRemain = "X-Error-Limit-Remain"
	HeaderErrorLimitReset  = "X-Error-Limit-Reset"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyErrorsRemaining = "notify:rate_limit:errors_remaining"
	RedisKeyResetTimestamp  = "notify:rate_limit:reset_timestamp"
	RedisKeyLastUpdate      = "notify:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ErrorThresholdCritical blocks all requests when errors remaining falls below this value.
	ErrorThresholdCritical = 5

	// ErrorThresholdWarning throttles requests when errors remaining falls below this value.
	ErrorThresholdWarning = 20

	// ErrorThresholdHealthy marks the state healthy at or above this value.
	ErrorThresholdHealthy = 50
)

// DefaultErrorLimit is assumed until the server reports a real window.
const DefaultErrorLimit = 100

// RateLimitState represents the current error rate limit state.
// With Redis configured it is shared by every client pointed at the same server.
type RateLimitState struct {
	// ErrorsRemaining is the number of errors allowed before the server blocks requests.
	ErrorsRemaining int `json:"errors_remaining"`

	// ResetAt is when the error limit window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from response headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when ErrorsRemaining >= ErrorThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is the optimistic state used before any headers were seen.
func defaultState(now time.Time) *RateLimitState {
	return &RateLimitState{
		ErrorsRemaining: DefaultErrorLimit,
		ResetAt:         now.Add(60 * time.Second),
		LastUpdate:      now,
		IsHealthy:       true,
	}
}

// IsStale returns true if the state data is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsExpired reports whether the reset time has passed. An expired window no
// longer blocks or throttles.
func (s *RateLimitState) IsExpired() bool {
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.ErrorsRemaining < ErrorThresholdCritical
}

// NeedsThrottling returns true if requests should be throttled.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.ErrorsRemaining < ErrorThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the error limit resets, or 0 if
// the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates IsHealthy from ErrorsRemaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.ErrorsRemaining >= ErrorThresholdHealthy
}
