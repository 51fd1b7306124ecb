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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type p1Listener struct{ count atomic.Int64 }

func (l *p1Listener) OnInteger(integerMsg) { l.count.Add(1) }

// TestP1ExactMatchPerInstance: exact-type, non-subtype handler fires once
// per subscribed listener instance.
func TestP1ExactMatchPerInstance(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	a, b := &p1Listener{}, &p1Listener{}
	is.NoError(bus.Subscribe(a))
	is.NoError(bus.Subscribe(b))

	bus.Publish(integerMsg(1))

	is.EqualValues(1, a.count.Load())
	is.EqualValues(1, b.count.Load())
}

// TestP3NoSupertypeLeak: a handler declared on a concrete type must not be
// invoked by a publication of a supertype-interface-typed value, even when
// that value's concrete type is unrelated to the handler's declared type.
func TestP3NoSupertypeLeak(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	listener := &p1Listener{}
	is.NoError(bus.Subscribe(listener))

	bus.Publish(doubleMsg(1.5))

	is.EqualValues(0, listener.count.Load())
}

type p6Listener struct{ count atomic.Int64 }

func (l *p6Listener) OnNumber(number) { l.count.Add(1) }

// TestP6CacheCoherence: the supertype cache computed before a new matching
// subscription exists must not be served stale after that subscription is
// added.
func TestP6CacheCoherence(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()

	// Prime the super cache for integerMsg with no handlers registered.
	is.Empty(bus.registry.subscriptionsSuper(reflect.TypeOf(integerMsg(0))))

	listener := &p6Listener{}
	is.NoError(bus.Subscribe(listener))

	bus.Publish(integerMsg(7))
	is.EqualValues(1, listener.count.Load(), "cache must recompute after subscribe, not serve the pre-subscribe empty result")
}

type p7Listener struct{ count atomic.Int64 }

func (l *p7Listener) OnInteger(integerMsg) { l.count.Add(1) }

// TestP7IdempotentUnsubscribe: unsubscribing an instance that was never
// subscribed is a no-op and does not disturb other instances.
func TestP7IdempotentUnsubscribe(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	subscribed := &p7Listener{}
	neverSubscribed := &p7Listener{}

	is.NoError(bus.Subscribe(subscribed))
	bus.Unsubscribe(neverSubscribed)

	bus.Publish(integerMsg(1))
	is.EqualValues(1, subscribed.count.Load())
	is.EqualValues(0, neverSubscribed.count.Load())

	bus.Unsubscribe(subscribed)
	bus.Publish(integerMsg(1))
	is.EqualValues(1, subscribed.count.Load(), "unsubscribed listener must not be invoked again")
}

type p8Listener struct{ count atomic.Int64 }

func (l *p8Listener) OnInteger(integerMsg) { l.count.Add(1) }

// TestP8ConcurrentSubscribePublish exercises concurrent publish and
// subscribe/unsubscribe; run with -race to confirm no data race. It checks
// that the bus never crashes and that every Subscribe call succeeds.
func TestP8ConcurrentSubscribePublish(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()

	const producers = 8
	const publishesPerProducer = 200
	const churners = 4
	const churnIterations = 200

	var wg sync.WaitGroup
	wg.Add(producers + churners)

	for i := 0; i < producers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < publishesPerProducer; j++ {
				bus.Publish(integerMsg(j))
			}
		}()
	}

	for i := 0; i < churners; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < churnIterations; j++ {
				l := &p8Listener{}
				is.NoError(bus.Subscribe(l))
				bus.Unsubscribe(l)
			}
		}()
	}

	wg.Wait()
}
