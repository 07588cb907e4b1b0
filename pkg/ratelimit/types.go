package ratelimit

import "time"

// Config holds the admission policy for a limiter.
type Config struct {
	// MaxRequests is the number of admissions allowed per window.
	// Must be positive.
	MaxRequests int `json:"max_requests"`

	// WindowMs is the sliding window length in milliseconds.
	// Must be positive.
	WindowMs int64 `json:"window_ms"`
}

// Info is the quota snapshot taken by a check.
type Info struct {
	// Remaining is the number of admissions still available in the
	// current window, after this check. Never negative, never above
	// Limit.
	Remaining int `json:"remaining"`

	// Limit echoes the configured MaxRequests.
	Limit int `json:"limit"`

	// Reset is the window start plus the window length, in the
	// limiter clock's milliseconds. It marks the instant the sliding
	// window's left edge reached at decision time.
	Reset int64 `json:"reset"`
}

// Result is the outcome of a single check.
type Result struct {
	// Allowed reports whether the request was admitted. An admitted
	// request has its timestamp recorded; a rejected one has not.
	Allowed bool `json:"allowed"`

	// Info is the quota snapshot taken by this check.
	Info Info `json:"info"`

	// RetryAfter is how long until the oldest counted admission
	// expires and a slot frees. Only set when the check was rejected.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
