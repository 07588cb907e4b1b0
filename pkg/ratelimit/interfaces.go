// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import "context"

// Limiter decides admission per key. Implementations serialize
// operations that share a key, so a Check is an atomic
// read-filter-decide-record step and concurrent checks against one key
// admit exactly up to the budget, in arrival order.
type Limiter interface {
	// Check decides whether key may be admitted right now. An admitted
	// request is recorded against key's quota; a rejected one is not.
	// The error is non-nil only when ctx is done before the key's
	// turn arrives.
	Check(ctx context.Context, key string) (Result, error)

	// Peek reports key's current quota without consuming any of it.
	Peek(ctx context.Context, key string) (Info, error)

	// Reset clears key's history, restoring its full quota
	// immediately.
	Reset(ctx context.Context, key string) error
}

// Compile-time interface checks
var (
	_ Limiter = (*SlidingWindow)(nil)
)
