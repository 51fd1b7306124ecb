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

package typebus

import (
	"reflect"

	"github.com/typebus/typebus/internal/xsync"
)

// Subscription unites one handler method with the set of listener instances
// currently bound to it (spec §3/§4.2). Exactly one Subscription exists per
// (listener-class, handler-method) pair for the process lifetime; it is
// never destroyed while the registry holds it, only emptied of listeners.
type Subscription struct {
	Metadata  HandlerMetadata
	listeners xsync.ListenerSet
}

func newSubscription(metadata HandlerMetadata) *Subscription {
	return &Subscription{Metadata: metadata}
}

// Subscribe adds listener to this handler's live set. Repeated subscription
// of the same instance is permitted and will duplicate deliveries
// (documented in spec §4.2).
func (s *Subscription) Subscribe(listener any) {
	s.listeners.Add(listener)
}

// Unsubscribe removes listener from this handler's live set. No-op if the
// listener was never added (P7).
func (s *Subscription) Unsubscribe(listener any) {
	s.listeners.Remove(listener)
}

// Len reports how many listener instances are currently bound.
func (s *Subscription) Len() int {
	return s.listeners.Len()
}

// publish iterates a consistent snapshot of the listener set and invokes the
// handler on each, reporting any failure through report instead of aborting
// the remaining iteration (spec §4.2, §7).
func (s *Subscription) publish(args []reflect.Value, report func(listener any, err error)) {
	for _, listener := range s.listeners.Snapshot() {
		if err := s.Metadata.Invoke(reflect.ValueOf(listener), args); err != nil {
			report(listener, err)
		}
	}
}
