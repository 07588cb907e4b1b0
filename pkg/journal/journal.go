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

// Package journal records admission decisions for audit and usage
// review. Recording is best effort at every call site: a journal
// failure is logged, never surfaced into the admission path.
package journal

import (
	"context"
	"fmt"

	"github.com/yoshikouki/aias-sub000/pkg/config"
)

// Decision labels stored with each entry.
const (
	DecisionAllowed   = "allowed"
	DecisionThrottled = "throttled"
)

// DefaultRecentLimit caps Recent queries that pass a non-positive
// limit.
const DefaultRecentLimit = 50

// Entry is one recorded admission decision.
type Entry struct {
	// ID uniquely identifies the entry. Backends assign one when the
	// caller leaves it empty.
	ID string `json:"id"`

	// Key is the rate limit key the decision was made for.
	Key string `json:"key"`

	// Decision is DecisionAllowed or DecisionThrottled.
	Decision string `json:"decision"`

	// Remaining is the quota left after the decision.
	Remaining int `json:"remaining"`

	// Reset is the window reset timestamp in Unix milliseconds.
	Reset int64 `json:"reset"`

	// RequestID correlates the entry with a served request.
	RequestID string `json:"request_id,omitempty"`

	// At is the decision timestamp in Unix milliseconds.
	At int64 `json:"at"`
}

// Journal stores admission decisions.
//
// Implementations must be safe for concurrent use.
type Journal interface {
	// Record stores one entry.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first. An empty key
	// matches every key. A non-positive limit means DefaultRecentLimit.
	Recent(ctx context.Context, key string, limit int) ([]Entry, error)

	// Prune deletes entries recorded before the given Unix millisecond
	// timestamp and returns how many were removed.
	Prune(ctx context.Context, before int64) (int64, error)

	// Close releases backend resources. Shared database handles stay
	// open; their pool owns them.
	Close() error
}

type requestIDKey struct{}

// WithRequestID attaches a request id for recorders to pick up.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the attached request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Nop discards every entry. Used when journaling is disabled.
type Nop struct{}

var _ Journal = Nop{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }

func (Nop) Prune(context.Context, int64) (int64, error) { return 0, nil }

func (Nop) Close() error { return nil }

// NewFromConfig builds the configured journal backend. Disabled
// journaling yields Nop.
func NewFromConfig(cfg *config.Config, pool *config.DBPool) (Journal, error) {
	if !cfg.Journal.IsEnabled() {
		return Nop{}, nil
	}

	switch cfg.Journal.Backend {
	case "memory", "":
		return NewMemory(cfg.Journal.Capacity), nil
	case "sql":
		if pool == nil {
			return nil, fmt.Errorf("a database pool is required for the sql journal")
		}
		if cfg.Database == nil {
			return nil, fmt.Errorf("journal backend 'sql' requires a database section")
		}
		db, err := pool.Get(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}
		return NewSQL(db, cfg.Database.Dialect())
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Journal.Backend)
	}
}
