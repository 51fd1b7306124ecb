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
	"reflect"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/typebus/typebus/internal/xtime"
)

// observability bundles the logging/tracing/metrics collaborators a Bus is
// configured with (SPEC_FULL.md AMBIENT STACK / DOMAIN STACK). Every field
// has a working zero-cost default so a Bus constructed with no Options
// behaves exactly as the spec describes, with no observability overhead
// beyond a few nil-interface checks.
type observability struct {
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter

	dispatched      metric.Int64Counter
	deadLettered    metric.Int64Counter
	queueDepth      metric.Int64UpDownCounter
	dropped         metric.Int64Counter
	workersActive   metric.Int64UpDownCounter
	dispatchLatency metric.Float64Histogram
}

func newObservability(logger *zap.Logger, tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) *observability {
	if logger == nil {
		logger = zap.NewNop()
	}

	var tracer trace.Tracer
	if tracerProvider != nil {
		tracer = tracerProvider.Tracer("github.com/typebus/typebus")
	} else {
		tracer = trace.NewNoopTracerProvider().Tracer("github.com/typebus/typebus")
	}

	var meter metric.Meter
	if meterProvider != nil {
		meter = meterProvider.Meter("github.com/typebus/typebus")
	} else {
		meter = noop.NewMeterProvider().Meter("github.com/typebus/typebus")
	}

	o := &observability{logger: logger, tracer: tracer, meter: meter}

	o.dispatched, _ = meter.Int64Counter("typebus.dispatched_total",
		metric.WithDescription("matched subscriptions dispatched to, across all match buckets"))
	o.deadLettered, _ = meter.Int64Counter("typebus.dead_lettered_total",
		metric.WithDescription("publications that matched no subscription in any bucket"))
	o.queueDepth, _ = meter.Int64UpDownCounter("typebus.async_queue_depth",
		metric.WithDescription("pending records in the asynchronous dispatch queue"))
	o.dropped, _ = meter.Int64Counter("typebus.async_dropped_total",
		metric.WithDescription("asynchronous publications abandoned on enqueue failure or timeout"))
	o.workersActive, _ = meter.Int64UpDownCounter("typebus.async_workers_active",
		metric.WithDescription("asynchronous worker goroutines currently running"))
	o.dispatchLatency, _ = meter.Float64Histogram("typebus.dispatch_latency_microseconds",
		metric.WithDescription("wall time spent matching and invoking handlers for one publish call"),
		metric.WithUnit("us"))

	return o
}

// dispatchClock returns the current monotonic timestamp used to measure
// dispatch latency (xtime.NowNanoMonotonic is ~3x cheaper than time.Now()
// and the publish path runs on every single publish call, making it worth
// the teacher's micro-optimization here).
func (o *observability) dispatchClock() int64 {
	return xtime.NowNanoMonotonic()
}

func (o *observability) recordDispatchLatency(startNanos int64) {
	elapsedMicros := float64(xtime.NowNanoMonotonic()-startNanos) / 1000.0
	o.dispatchLatency.Record(context.Background(), elapsedMicros)
}

func (o *observability) startDispatchSpan(ctx context.Context, types []reflect.Type) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "typebus.publish", trace.WithAttributes(spanAttributes(types)...))
}

func (o *observability) logHandlerFailure(err error) {
	o.logger.Warn("typebus: handler invocation failed", zap.Error(err))
}

func (o *observability) recordDispatch(invocationCount int, deadLettered bool) {
	ctx := context.Background()
	if invocationCount > 0 {
		o.dispatched.Add(ctx, int64(invocationCount))
	}
	if deadLettered {
		o.deadLettered.Add(ctx, 1)
	}
}

func (o *observability) recordEnqueue() {
	o.queueDepth.Add(context.Background(), 1)
}

func (o *observability) recordDequeue() {
	o.queueDepth.Add(context.Background(), -1)
}

func (o *observability) recordDropped() {
	o.dropped.Add(context.Background(), 1)
}

func (o *observability) logWorkerStarted(id int) {
	o.workersActive.Add(context.Background(), 1)
	o.logger.Info("typebus: async worker started", zap.Int("worker_id", id))
}

func (o *observability) logWorkerStopped(id int) {
	o.workersActive.Add(context.Background(), -1)
	o.logger.Info("typebus: async worker stopped", zap.Int("worker_id", id))
}

func (o *observability) logQueueFull() {
	o.logger.Warn("typebus: async queue full, publisher blocked")
}
