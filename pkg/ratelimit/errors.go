// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	// ErrRateLimitExceeded is returned when a rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidMaxRequests is returned by New when the configured
	// request budget is zero or negative.
	ErrInvalidMaxRequests = errors.New("maxRequests must be positive")

	// ErrInvalidWindow is returned by New when the configured window
	// length is zero or negative.
	ErrInvalidWindow = errors.New("windowMs must be positive")

	// ErrNotInitialized is returned when the package default limiter
	// is used before SetDefault or InitDefault.
	ErrNotInitialized = errors.New("limiter not initialized")
)

// ExceededError reports a throttled request with the quota snapshot
// taken at decision time, so callers can read Remaining, Limit, and
// Reset to decide whether to wait, queue, or surface a message.
type ExceededError struct {
	// Key identifies whose quota was exhausted.
	Key string

	// Info is the quota snapshot taken by the rejecting check.
	Info Info

	// RetryAfter is how long until a slot frees.
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: %d of %d remaining", e.Key, e.Info.Remaining, e.Info.Limit)
}

// Unwrap returns the underlying sentinel so errors.Is matches
// ErrRateLimitExceeded.
func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// NewExceededError creates an ExceededError from a rejecting Result.
func NewExceededError(key string, result Result) *ExceededError {
	return &ExceededError{
		Key:        key,
		Info:       result.Info,
		RetryAfter: result.RetryAfter,
	}
}

// IsExceeded checks if an error reports a throttled request.
func IsExceeded(err error) bool {
	if err == nil {
		return false
	}
	var ee *ExceededError
	if errors.As(err, &ee) {
		return true
	}
	return errors.Is(err, ErrRateLimitExceeded)
}

// GetInfo extracts the quota snapshot from a throttling error.
// The second return is false if the error is not an ExceededError.
func GetInfo(err error) (Info, bool) {
	if err == nil {
		return Info{}, false
	}
	var ee *ExceededError
	if errors.As(err, &ee) {
		return ee.Info, true
	}
	return Info{}, false
}
