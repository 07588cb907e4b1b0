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

// Package ratelimit provides per-key sliding-window rate limiting.
//
// Features:
//   - Sliding window log (exact timestamps, no bucket boundary bursts)
//   - Per-key FIFO serialization of check-then-record
//   - Independent quotas per key; keys never block each other
//   - Pluggable clock for deterministic window tests
//   - Guard decorators for arbitrary calls plus HTTP middleware
//   - Opportunistic cleanup of idle keys, bounded memory
//
// # Basic Usage
//
//	// Create a limiter
//	limiter, err := ratelimit.New(ratelimit.Config{
//	    MaxRequests: 5,
//	    WindowMs:    60000,
//	}, clock.Real())
//
//	// Check and record in one atomic step
//	result, err := limiter.Check(ctx, userID)
//	if !result.Allowed {
//	    // Handle rate limit exceeded
//	}
//
//	// Or guard a call so it only runs when admitted
//	guard := ratelimit.Guard(limiter, userID)
//	err = guard(ctx, func(ctx context.Context) error {
//	    return callProvider(ctx)
//	})
//
// # Configuration
//
//	rate_limits:
//	  default:
//	    max_requests: 5
//	    window_ms: 60000
//	    sweep_probability: 0.01
//
// # Semantics
//
// A check admits a request when fewer than MaxRequests admissions are
// recorded within the trailing WindowMs milliseconds, then records it.
// A rejected request records nothing and consumes no quota. Entries
// leave the window exactly WindowMs after admission, so quota frees up
// continuously rather than at bucket boundaries.
//
// Each key's history is touched only while holding that key's lock, so
// concurrent checks against the same key admit exactly up to the budget,
// in arrival order. The package-level guard helpers return a typed
// *ExceededError carrying the limit snapshot when throttled.
package ratelimit
