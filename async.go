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
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// messageHolder is the pooled record of spec §4.5: a reusable slot for a
// published tuple, cycled between the free-list and the dispatch queue so
// that no record is allocated per asynchronous publication. The worker still
// copies each payload into a fresh slice before dispatching it.
type messageHolder struct {
	values []any
}

// asyncDispatch is the Asynchronous Dispatch component (spec §4.5): a
// bounded FIFO queue drained by a fixed worker pool, backed by a free-list
// of pooled messageHolder records. Both queue and free-list are modeled as
// buffered channels — a ring-buffer with sequence cursors would also
// satisfy the spec's contract (§4.5's closing paragraph permits either),
// but channels are the idiomatic Go rendition of a blocking MPMC queue and
// match the teacher's own preference for channel-based concurrency over
// hand-rolled lock-free structures.
type asyncDispatch struct {
	disp *dispatcher
	obs  *observability

	queue    chan *messageHolder
	freeList chan *messageHolder

	limiter *rate.Limiter

	wg           sync.WaitGroup
	done         chan struct{}
	shuttingDown atomic.Bool
	pending      atomic.Int64
}

func newAsyncDispatch(disp *dispatcher, obs *observability, workers, queueCapacity int, limiter *rate.Limiter) *asyncDispatch {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = 1
	}

	a := &asyncDispatch{
		disp:     disp,
		obs:      obs,
		queue:    make(chan *messageHolder, queueCapacity),
		freeList: make(chan *messageHolder, queueCapacity),
		limiter:  limiter,
		done:     make(chan struct{}),
	}

	for i := 0; i < queueCapacity; i++ {
		a.freeList <- &messageHolder{}
	}

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.workerLoop(i)
	}

	return a
}

// workerLoop is the consumer side of spec §4.5: take a record, run the
// synchronous dispatch path with its payload, return the record to the
// free-list. The first few poll attempts spin before parking on the
// channel receive, trading a little CPU for lower latency under light,
// bursty load (spec §4.5's "adaptive wait" worker-loop strategy); Go's
// runtime-parked channel receive already degrades to a blocking wait, so
// the spin only shortens the common case where a message arrives within a
// few scheduler quanta of the worker going idle.
func (a *asyncDispatch) workerLoop(id int) {
	defer a.wg.Done()
	a.obs.logWorkerStarted(id)
	defer a.obs.logWorkerStopped(id)

	const spinAttempts = 32

	for {
		holder, ok := a.pollSpin(spinAttempts)
		if !ok {
			select {
			case holder, ok = <-a.queue:
				if !ok {
					return
				}
			case <-a.done:
				return
			}
		}

		a.pending.Add(-1)
		a.obs.recordDequeue()

		values := make([]any, len(holder.values))
		copy(values, holder.values)

		a.disp.publishTuple(context.Background(), values)

		holder.values = holder.values[:0]
		select {
		case a.freeList <- holder:
		default:
			// Free-list at capacity (shouldn't happen: it starts sized to
			// queueCapacity and every take is paired with a return); drop
			// the holder rather than block a worker forever.
		}
	}
}

func (a *asyncDispatch) pollSpin(attempts int) (*messageHolder, bool) {
	for i := 0; i < attempts; i++ {
		select {
		case holder, ok := <-a.queue:
			return holder, ok
		case <-a.done:
			return nil, false
		default:
			runtime.Gosched()
		}
	}
	return nil, false
}

// ErrBusShutDown is returned by publishAsync* once shutdown has completed.
var ErrBusShutDown = fmt.Errorf("typebus: bus is shut down")

// publishAsync implements spec §4.5's publishAsync(args...): obtain a free
// record (blocking if none available — suspension point (c)), populate,
// enqueue (blocking if the queue is full — also (c)).
func (a *asyncDispatch) publishAsync(values []any, sinks *errorSinks) error {
	if a.shuttingDown.Load() {
		return ErrBusShutDown
	}

	if a.limiter != nil {
		_ = a.limiter.Wait(context.Background())
	}

	var holder *messageHolder
	select {
	case holder = <-a.freeList:
	case <-a.done:
		return ErrBusShutDown
	default:
		a.obs.logQueueFull()
		select {
		case holder = <-a.freeList:
		case <-a.done:
			return ErrBusShutDown
		}
	}

	holder.values = append(holder.values[:0], values...)

	select {
	case a.queue <- holder:
		a.pending.Add(1)
		a.obs.recordEnqueue()
		return nil
	case <-a.done:
		a.returnHolder(holder)
		a.reportEnqueueFailure(values, sinks, ErrBusShutDown)
		return ErrBusShutDown
	}
}

// publishAsyncWithTimeout implements spec §4.5's timed variant: the same
// free-list/enqueue waits, each bounded by timeout. Timeout or interruption
// reports a PublicationError and drops the publication rather than
// retrying or blocking further.
func (a *asyncDispatch) publishAsyncWithTimeout(values []any, timeout time.Duration, sinks *errorSinks) error {
	if a.shuttingDown.Load() {
		return ErrBusShutDown
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	if a.limiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.limiter.Wait(ctx); err != nil {
			a.obs.recordDropped()
			a.reportEnqueueFailure(values, sinks, err)
			return err
		}
	}

	var holder *messageHolder
	select {
	case holder = <-a.freeList:
	case <-a.done:
		a.reportEnqueueFailure(values, sinks, ErrBusShutDown)
		return ErrBusShutDown
	case <-deadline.C:
		a.obs.recordDropped()
		a.reportEnqueueFailure(values, sinks, context.DeadlineExceeded)
		return context.DeadlineExceeded
	}

	holder.values = append(holder.values[:0], values...)

	select {
	case a.queue <- holder:
		a.pending.Add(1)
		a.obs.recordEnqueue()
		return nil
	case <-a.done:
		a.returnHolder(holder)
		a.reportEnqueueFailure(values, sinks, ErrBusShutDown)
		return ErrBusShutDown
	case <-deadline.C:
		a.returnHolder(holder)
		a.obs.recordDropped()
		a.reportEnqueueFailure(values, sinks, context.DeadlineExceeded)
		return context.DeadlineExceeded
	}
}

func (a *asyncDispatch) returnHolder(holder *messageHolder) {
	holder.values = holder.values[:0]
	select {
	case a.freeList <- holder:
	default:
	}
}

func (a *asyncDispatch) reportEnqueueFailure(values []any, sinks *errorSinks, cause error) {
	a.obs.logger.Warn("typebus: async enqueue failed", zap.Error(cause))
	sinks.dispatch(PublicationError{
		ID:             uuid.New(),
		Message:        "async enqueue failed",
		Cause:          cause,
		PublishedTuple: values,
	})
}

// hasPendingMessages reports whether the dispatch queue is non-empty (spec
// §4.5): a live counter in step with every enqueue/dequeue, never a
// hardcoded constant (§9 Open Question 3 / SPEC_FULL.md Resolution 3).
func (a *asyncDispatch) hasPendingMessages() bool {
	return a.pending.Load() > 0
}

// shutdown implements spec §4.5's shutdown(): idempotent, sets a monotone
// flag, interrupts all workers, and waits for every worker to acknowledge
// exit.
func (a *asyncDispatch) shutdown() {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	close(a.done)
	a.wg.Wait()
}
