// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package xsync holds the copy-on-write listener set used by the dispatch
// core.
package xsync

import (
	"sync"
	"sync/atomic"
)

// ListenerSet is the concurrent container backing a Subscription's listener
// instances (spec §3: "supports concurrent add/remove/iterate; iteration
// sees a consistent snapshot but may miss concurrently-added listeners").
//
// Writes are serialized by mu and publish a new immutable snapshot slice via
// atomic.Pointer; reads (Snapshot) load that pointer without taking mu, so
// publish iteration never blocks on subscribe/unsubscribe of other
// instances.
type ListenerSet struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]any]
}

var emptySnapshot = []any{}

// Add appends listener to the set. Duplicate instances are permitted
// (spec §4.2: "repeated subscribes ... may deliver duplicates").
func (s *ListenerSet) Add(listener any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.load()
	next := make([]any, len(old), len(old)+1)
	copy(next, old)
	next = append(next, listener)
	s.snapshot.Store(&next)
}

// Remove deletes every occurrence of listener from the set (no-op if
// absent, spec §4.2/P7).
func (s *ListenerSet) Remove(listener any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.load()

	found := false
	for _, l := range old {
		if l == listener {
			found = true
			break
		}
	}
	if !found {
		return
	}

	next := make([]any, 0, len(old))
	for _, l := range old {
		if l != listener {
			next = append(next, l)
		}
	}
	s.snapshot.Store(&next)
}

// Snapshot returns the current listener slice, lock-free. The caller must
// not mutate it; it is shared and replaced wholesale on the next write.
func (s *ListenerSet) Snapshot() []any {
	return s.load()
}

// Len reports the number of listeners currently held.
func (s *ListenerSet) Len() int {
	return len(s.load())
}

func (s *ListenerSet) load() []any {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return emptySnapshot
}
