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
	"fmt"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
	"github.com/yoshikouki/aias-sub000/pkg/config"
)

// FromConfig creates a SlidingWindow from one named policy section.
// A nil or disabled section yields a nil limiter; callers treat that
// as "no limiting" and must not wrap it in a non-nil Limiter value.
//
// Example config:
//
//	rate_limits:
//	  default:
//	    max_requests: 5
//	    window_ms: 60000
//	  chat:
//	    max_requests: 2
//	    window_ms: 1000
//	    sweep_probability: 0.05
func FromConfig(cfg *config.RateLimitConfig, clk clock.Clock) (*SlidingWindow, error) {
	if cfg == nil || !cfg.IsEnabled() {
		return nil, nil
	}

	var opts []Option
	if cfg.SweepProbability != nil {
		opts = append(opts, WithSweepProbability(*cfg.SweepProbability))
	}

	lim, err := New(Config{
		MaxRequests: cfg.MaxRequests,
		WindowMs:    cfg.WindowMs,
	}, clk, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter: %w", err)
	}
	return lim, nil
}

// FromRootConfig builds every enabled policy in cfg, keyed by section
// name. Disabled sections are skipped.
func FromRootConfig(cfg *config.Config, clk clock.Clock) (map[string]*SlidingWindow, error) {
	limiters := make(map[string]*SlidingWindow, len(cfg.RateLimits))
	for name, section := range cfg.RateLimits {
		lim, err := FromConfig(section, clk)
		if err != nil {
			return nil, fmt.Errorf("rate_limits.%s: %w", name, err)
		}
		if lim != nil {
			limiters[name] = lim
		}
	}
	return limiters, nil
}
