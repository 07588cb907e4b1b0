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
	"context"
	"sync"

	"github.com/yoshikouki/aias-sub000/pkg/clock"
)

// Next is a guarded unit of work.
type Next func(ctx context.Context) error

// GuardFunc gates a unit of work behind a rate limit check. When the
// check admits, next runs and its result propagates unchanged. When the
// check rejects, next never runs and the returned error is an
// *ExceededError carrying the quota snapshot.
type GuardFunc func(ctx context.Context, next Next) error

// Guard binds a limiter and a key into a reusable GuardFunc.
//
// The guard performs exactly one check per invocation: no retries, no
// backoff, no double-gating. Errors returned by next are passed through
// untouched; the guard only intercepts before invocation.
func Guard(l Limiter, key string) GuardFunc {
	return func(ctx context.Context, next Next) error {
		result, err := l.Check(ctx, key)
		if err != nil {
			return err
		}
		if !result.Allowed {
			return NewExceededError(key, result)
		}
		return next(ctx)
	}
}

// Do runs fn under a rate limit check when the call produces a value.
// Semantics match Guard: fn never runs when throttled, and its value and
// error propagate unchanged when admitted.
func Do[T any](ctx context.Context, l Limiter, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := l.Check(ctx, key)
	if err != nil {
		return zero, err
	}
	if !result.Allowed {
		return zero, NewExceededError(key, result)
	}
	return fn(ctx)
}

// ============================================================================
// PACKAGE DEFAULT
// ============================================================================
//
// Construction belongs at the composition root: build a limiter there
// and pass it to whoever needs it. The package default below exists for
// the outermost ambient path only (the CLI one-shot commands) and must
// be set explicitly; nothing here constructs one lazily.

var (
	defaultMu      sync.RWMutex
	defaultLimiter Limiter
)

// SetDefault installs l as the package default limiter. Passing nil
// clears it. Intended to be called once at startup and from tests.
func SetDefault(l Limiter) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLimiter = l
}

// InitDefault constructs a SlidingWindow from cfg and installs it as
// the package default.
func InitDefault(cfg Config, clk clock.Clock, opts ...Option) error {
	l, err := New(cfg, clk, opts...)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// Default returns the package default limiter, or ErrNotInitialized if
// none has been installed. Callers must not fall back to unlimited
// traffic on error.
func Default() (Limiter, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultLimiter == nil {
		return nil, ErrNotInitialized
	}
	return defaultLimiter, nil
}

// GuardDefault is Guard against the package default limiter. The
// default is resolved at call time, not at bind time, so installing or
// replacing the default later is picked up; calls before installation
// fail with ErrNotInitialized.
func GuardDefault(key string) GuardFunc {
	return func(ctx context.Context, next Next) error {
		l, err := Default()
		if err != nil {
			return err
		}
		return Guard(l, key)(ctx, next)
	}
}
