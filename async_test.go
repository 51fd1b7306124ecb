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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type orderedListener struct {
	mu   sync.Mutex
	seen []int
}

func (l *orderedListener) OnInteger(m integerMsg) {
	l.mu.Lock()
	l.seen = append(l.seen, int(m))
	l.mu.Unlock()
}

// TestP9AsyncFIFOPerProducer: a single producer's enqueued messages are
// dequeued in the order they were enqueued (spec P9), even though a single
// worker is used here to make processing order observable.
func TestP9AsyncFIFOPerProducer(t *testing.T) {
	is := assert.New(t)

	bus := NewBus(WithAsyncWorkers(1), WithAsyncQueueCapacity(64))
	defer bus.Shutdown()

	listener := &orderedListener{}
	is.NoError(bus.Subscribe(listener))

	const n = 100
	for i := 0; i < n; i++ {
		is.NoError(bus.PublishAsync(integerMsg(i)))
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		listener.mu.Lock()
		got := len(listener.seen)
		listener.mu.Unlock()
		if got >= n || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	is.Len(listener.seen, n)
	for i, v := range listener.seen {
		is.Equal(i, v, "messages must be processed in enqueue order for a single producer/single worker")
	}
}

type countOnlyListener struct{ count atomic.Int64 }

func (l *countOnlyListener) OnInteger(integerMsg) { l.count.Add(1) }

// TestP10ShutdownStopsWorkers verifies that Shutdown is idempotent, leaves
// no worker goroutine running (goleak), and that HasPendingMessages does
// not need to reach false for Shutdown to be valid.
func TestP10ShutdownStopsWorkers(t *testing.T) {
	defer goleak.VerifyNone(t)

	is := assert.New(t)

	bus := NewBus(WithAsyncWorkers(4), WithAsyncQueueCapacity(256))
	listener := &countOnlyListener{}
	is.NoError(bus.Subscribe(listener))

	for i := 0; i < 50; i++ {
		is.NoError(bus.PublishAsync(integerMsg(i)))
	}

	bus.Shutdown()
	bus.Shutdown() // idempotent

	err := bus.PublishAsync(integerMsg(999))
	is.ErrorIs(err, ErrBusShutDown)
}

type s6Listener struct{ count atomic.Int64 }

func (l *s6Listener) OnInteger(integerMsg) { l.count.Add(1) }

// TestScenarioS6AsyncFanIn reproduces spec §8 S6: 10,000 messages across 4
// producer goroutines, 4 workers, a single handler counting deliveries.
func TestScenarioS6AsyncFanIn(t *testing.T) {
	is := assert.New(t)

	bus := NewBus(WithAsyncWorkers(4), WithAsyncQueueCapacity(4096))

	listener := &s6Listener{}
	is.NoError(bus.Subscribe(listener))

	const producers = 4
	const perProducer = 2500

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for {
					if err := bus.PublishAsync(integerMsg(i)); err == nil {
						break
					}
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(10 * time.Second)
	for listener.count.Load() < producers*perProducer && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	is.EqualValues(producers*perProducer, listener.count.Load())

	bus.Shutdown()
}
