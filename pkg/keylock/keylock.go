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

// Package keylock provides per-key FIFO mutual exclusion.
//
// A KeyedMutex serializes operations that share a key while letting
// operations on distinct keys run fully in parallel. For a fixed key,
// lock grants follow acquisition order, so a read-then-write sequence
// such as "check remaining quota, then record an admission" stays atomic
// per key without a global lock.
//
// The lock is not reentrant. Acquiring a key while already holding it
// deadlocks; callers must not nest acquisitions of the same key.
package keylock

import (
	"context"
	"sync"
)

// KeyedMutex is a set of independent FIFO mutexes addressed by string
// key. The zero value is not usable; call New.
//
// Internal bookkeeping for a key exists only while the key has a holder
// or waiters, so idle keys cost no memory.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry tracks one key's lock chain. tail is the release signal of the
// most recently enqueued acquirer; refs counts the holder plus waiters.
type entry struct {
	tail chan struct{}
	refs int
}

// New returns an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Lock acquires the mutex for key, blocking until all earlier acquirers
// of the same key have released. It returns an unlock function that must
// be called exactly once, typically via defer. Calling unlock more than
// once is a no-op.
//
// If ctx is canceled while waiting, Lock returns ctx.Err() and the slot
// is forwarded to the next waiter once it would have been granted; the
// queue stays intact for everyone behind the canceled caller.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	prev := e.tail
	next := make(chan struct{})
	e.tail = next
	e.refs++
	m.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain moving: pass the baton to our successor
			// as soon as our turn arrives.
			go func() {
				<-prev
				m.release(key, next)
			}()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			m.release(key, next)
		})
	}
	return unlock, nil
}

// WithLock runs fn while holding the mutex for key and releases it when
// fn returns, whether fn succeeds, returns an error, or panics. The
// error returned by fn propagates unchanged. A ctx canceled before the
// lock is granted returns ctx.Err() without running fn.
func (m *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	unlock, err := m.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Len reports how many keys currently have a holder or waiters. Intended
// for tests asserting that idle keys are evicted.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Waiters reports how many acquirers currently hold or wait on key.
// Intended for tests.
func (m *KeyedMutex) Waiters(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.refs
	}
	return 0
}

// release signals the successor waiting on next and drops the key's
// bookkeeping once nobody holds or waits on it.
func (m *KeyedMutex) release(key string, next chan struct{}) {
	close(next)
	m.mu.Lock()
	e := m.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
