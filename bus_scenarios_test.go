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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- scenario fixtures -------------------------------------------------

type number interface{ isNumber() }

type integerMsg int

func (integerMsg) isNumber() {}

type doubleMsg float64

func (doubleMsg) isNumber() {}

type widgetMsg struct{ id int }

type s1Listener struct {
	h1Count atomic.Int64
	h2Count atomic.Int64
}

func (l *s1Listener) OnNumber(number) { l.h1Count.Add(1) }
func (l *s1Listener) OnInteger(integerMsg) { l.h2Count.Add(1) }

// TestScenarioS1SupertypeAndExact reproduces spec §8 S1.
func TestScenarioS1SupertypeAndExact(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	listener := &s1Listener{}
	is.NoError(bus.Subscribe(listener))

	bus.Publish(integerMsg(7))
	is.EqualValues(1, listener.h1Count.Load())
	is.EqualValues(1, listener.h2Count.Load())

	bus.Publish(doubleMsg(3.14))
	is.EqualValues(2, listener.h1Count.Load())
	is.EqualValues(1, listener.h2Count.Load())
}

type s2Listener struct {
	lastLen  int
	lastCall []any
	calls    atomic.Int64
}

func (l *s2Listener) OnObjects(items ...any) {
	l.calls.Add(1)
	l.lastLen = len(items)
	l.lastCall = items
}

// TestScenarioS2VarArgNoRewrap reproduces spec §8 S2.
func TestScenarioS2VarArgNoRewrap(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	listener := &s2Listener{}
	is.NoError(bus.Subscribe(listener))

	bus.Publish("hi")
	is.EqualValues(1, listener.calls.Load())
	is.Equal(1, listener.lastLen)
	is.Equal("hi", listener.lastCall[0])

	original := []any{"a", "b"}
	bus.Publish(original)
	is.EqualValues(2, listener.calls.Load())
	is.Equal(2, listener.lastLen)
}

type s3DeadListener struct {
	received []DeadMessage
}

func (l *s3DeadListener) OnDeadMessage(dm DeadMessage) {
	l.received = append(l.received, dm)
}

type s3WidgetListener struct {
	count atomic.Int64
}

func (l *s3WidgetListener) OnWidget(widgetMsg) { l.count.Add(1) }

// TestScenarioS3DeadLetterThenLiveHandler reproduces spec §8 S3.
func TestScenarioS3DeadLetterThenLiveHandler(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	dead := &s3DeadListener{}
	is.NoError(bus.Subscribe(dead))

	bus.Publish(widgetMsg{id: 1})
	is.Len(dead.received, 1)
	is.Equal(widgetMsg{id: 1}, dead.received[0].First())

	widget := &s3WidgetListener{}
	is.NoError(bus.Subscribe(widget))

	bus.Publish(widgetMsg{id: 2})
	is.EqualValues(1, widget.count.Load())
	is.Len(dead.received, 1, "dead-letter must not fire once a live handler exists")
}

type s4Listener struct {
	count atomic.Int64
}

func (l *s4Listener) OnString(string) { l.count.Add(1) }

// TestScenarioS4MassSubscribeUnsubscribe reproduces spec §8 S4.
func TestScenarioS4MassSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	listeners := make([]*s4Listener, 1000)
	for i := range listeners {
		listeners[i] = &s4Listener{}
		is.NoError(bus.Subscribe(listeners[i]))
	}

	bus.Publish("x")
	for _, l := range listeners {
		is.EqualValues(1, l.count.Load())
	}

	for _, l := range listeners {
		bus.Unsubscribe(l)
	}

	bus.Publish("x")
	for _, l := range listeners {
		is.EqualValues(1, l.count.Load(), "unsubscribed listener must not be invoked again")
	}
}

type s5Listener struct {
	count atomic.Int64
}

func (l *s5Listener) OnPair(number, string) { l.count.Add(1) }

// TestScenarioS5MixedTupleSubtype reproduces spec §8 S5: the first position
// is polymorphic (number interface) but the second is concrete (string),
// exercising the corrected per-position AcceptsSubtypes semantics.
func TestScenarioS5MixedTupleSubtype(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	bus := NewBus()
	listener := &s5Listener{}
	is.NoError(bus.Subscribe(listener))

	bus.Publish2(integerMsg(1), "s")
	is.EqualValues(1, listener.count.Load())

	bus.Publish2(integerMsg(1), integerMsg(2))
	is.EqualValues(1, listener.count.Load(), "second position is concrete-typed and must not accept a number")
}
