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
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PublicationError is the external error sink's payload (spec §6/§7): a
// handler failure or an async-enqueue failure, always paired with the tuple
// that was being published when it happened.
type PublicationError struct {
	// ID is a random identifier generated for each error. It is not written
	// to the zap log or the otel span.
	ID             uuid.UUID
	Message        string
	Cause          error
	PublishedTuple []any
}

func (e PublicationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("typebus: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("typebus: %s", e.Message)
}

// ErrorSink is the external collaborator consumed for out-of-band error
// reporting (spec §6/§7).
type ErrorSink interface {
	Handle(PublicationError)
}

// ErrorSinkFunc adapts a plain function to ErrorSink, mirroring the
// standard library's http.HandlerFunc idiom. Not present in the original
// Java source; a natural completion of an interface with a single method
// (SPEC_FULL.md Supplemented Features).
type ErrorSinkFunc func(PublicationError)

// Handle implements ErrorSink.
func (f ErrorSinkFunc) Handle(err PublicationError) { f(err) }

// errorSinks is the concurrent list of registered sinks. Unlike ro.go's
// single atomic.Value handler slot (one handler wins), spec §6 requires
// every registered sink to be invoked, so this holds an ordered list
// guarded by a mutex on the write side and copied for lock-free dispatch.
type errorSinks struct {
	mu    sync.Mutex
	sinks []ErrorSink
}

func (s *errorSinks) add(sink ErrorSink) {
	if sink == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]ErrorSink, len(s.sinks), len(s.sinks)+1)
	copy(next, s.sinks)
	s.sinks = append(next, sink)
}

func (s *errorSinks) dispatch(err PublicationError) {
	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Handle(err)
	}
}
