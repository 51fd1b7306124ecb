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

// Package typebus implements an in-process publish/subscribe message bus:
// listener objects expose handler methods discovered by naming convention,
// publishers post one or more message values, and the bus invokes every
// handler whose declared parameters are compatible with the published
// tuple — by exact type, by declared supertype, or by a declared variadic
// array type. Delivery is synchronous on the caller's goroutine or
// asynchronous through a bounded worker pool; unmatched publications are
// wrapped in a DeadMessage and redelivered to any exact DeadMessage
// subscriber.
package typebus

import (
	"context"
	"reflect"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Bus is the process-wide pub/sub instance (spec §9: "the bus instance is
// the only process-wide state; no singletons — multiple instances must be
// independent"). Construct with NewBus; the zero value is not usable.
type Bus struct {
	registry *registry
	sinks    *errorSinks
	obs      *observability
	disp     *dispatcher
	async    *asyncDispatch
}

// Option configures a Bus at construction time.
type Option func(*busConfig)

type busConfig struct {
	handlerPrefix  string
	provider       HandlerMetadataProvider
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	asyncWorkers   int
	asyncQueueCap  int
	asyncLimiter   *rate.Limiter
}

// WithHandlerPrefix sets the method-name prefix handlerscan uses to
// recognize handler methods (default "On"). Lets a codebase with its own
// naming convention (e.g. "Handle") use the default provider unchanged
// (SPEC_FULL.md Supplemented Features).
func WithHandlerPrefix(prefix string) Option {
	return func(c *busConfig) { c.handlerPrefix = prefix }
}

// WithHandlerMetadataProvider overrides the default reflection-based
// handler discovery (spec §6's "handler provider" collaborator) with a
// caller-supplied implementation.
func WithHandlerMetadataProvider(provider HandlerMetadataProvider) Option {
	return func(c *busConfig) { c.provider = provider }
}

// WithLogger sets the zap logger used for recovered handler panics, async
// worker lifecycle events, and backpressure warnings. Default: zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(c *busConfig) { c.logger = logger }
}

// WithTracerProvider sets the otel TracerProvider used to span each
// publish* call. Default: a no-op provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *busConfig) { c.tracerProvider = tp }
}

// WithMeterProvider sets the otel MeterProvider backing the
// dispatched/dropped/queue-depth instruments. Bus.Stats() does not read
// these instruments. Default: a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *busConfig) { c.meterProvider = mp }
}

// WithAsyncWorkers sets the fixed asynchronous worker-pool size (default:
// runtime.GOMAXPROCS(0)).
func WithAsyncWorkers(n int) Option {
	return func(c *busConfig) { c.asyncWorkers = n }
}

// WithAsyncQueueCapacity sets the bounded async queue's (and matching
// free-list's) capacity (default 1024).
func WithAsyncQueueCapacity(n int) Option {
	return func(c *busConfig) { c.asyncQueueCap = n }
}

// WithAsyncRateLimit governs PublishAsync/PublishAsyncWithTimeout's enqueue
// path with a token-bucket limiter, so a flooding producer degrades via the
// spec's existing backpressure contract rather than growing unbounded
// goroutine counts (SPEC_FULL.md DOMAIN STACK).
func WithAsyncRateLimit(limiter *rate.Limiter) Option {
	return func(c *busConfig) { c.asyncLimiter = limiter }
}

// NewBus constructs a ready-to-use Bus.
func NewBus(opts ...Option) *Bus {
	cfg := &busConfig{
		handlerPrefix: "On",
		asyncWorkers:  runtime.GOMAXPROCS(0),
		asyncQueueCap: 1024,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	provider := cfg.provider
	if provider == nil {
		provider = newDefaultProvider(cfg.handlerPrefix)
	}

	reg := newRegistry(provider)
	sinks := &errorSinks{}
	obs := newObservability(cfg.logger, cfg.tracerProvider, cfg.meterProvider)
	disp := &dispatcher{registry: reg, sinks: sinks, obs: obs}
	async := newAsyncDispatch(disp, obs, cfg.asyncWorkers, cfg.asyncQueueCap, cfg.asyncLimiter)

	return &Bus{
		registry: reg,
		sinks:    sinks,
		obs:      obs,
		disp:     disp,
		async:    async,
	}
}

// Subscribe registers listener's handler methods. A nil listener is a
// no-op (spec §6).
func (b *Bus) Subscribe(listener any) error {
	if listener == nil || reflect.ValueOf(listener).Kind() == reflect.Invalid {
		return nil
	}
	return b.registry.subscribe(listener)
}

// Unsubscribe removes listener from every Subscription it was added to. A
// nil listener, or one never subscribed, is a no-op (spec §4.3, P7).
func (b *Bus) Unsubscribe(listener any) {
	if listener == nil {
		return
	}
	b.registry.unsubscribe(listener)
}

// Publish delivers a single message synchronously on the caller's
// goroutine (spec §4.4). A nil message is a no-op (spec §7).
func (b *Bus) Publish(m1 any) {
	b.PublishContext(context.Background(), m1)
}

// PublishContext is Publish with an explicit context, propagated to the
// otel span covering the dispatch.
func (b *Bus) PublishContext(ctx context.Context, m1 any) {
	if m1 == nil {
		return
	}
	b.disp.publishTuple(ctx, []any{m1})
}

// Publish2 delivers a two-message tuple synchronously (spec §4.4).
func (b *Bus) Publish2(m1, m2 any) {
	if m1 == nil || m2 == nil {
		return
	}
	b.disp.publishTuple(context.Background(), []any{m1, m2})
}

// Publish3 delivers a three-message tuple synchronously (spec §4.4).
func (b *Bus) Publish3(m1, m2, m3 any) {
	if m1 == nil || m2 == nil || m3 == nil {
		return
	}
	b.disp.publishTuple(context.Background(), []any{m1, m2, m3})
}

// PublishVariadic delivers a k-ary tuple (k ≥ 4 typically, but any k is
// accepted) synchronously. A single value is dispatched exactly like
// Publish. For k ≥ 2, tuple-key matching always applies; the varArg bucket
// additionally applies only when k ≥ 4 and every value shares the same
// runtime type (spec §4.4's closing paragraph).
func (b *Bus) PublishVariadic(messages ...any) {
	if len(messages) == 0 {
		return
	}
	for _, m := range messages {
		if m == nil {
			return
		}
	}
	b.disp.publishTuple(context.Background(), messages)
}

// PublishAsync enqueues a publication for asynchronous delivery by the
// worker pool (spec §4.5). Blocks if the free-list or queue is momentarily
// full or empty (the spec's backpressure suspension point); returns
// ErrBusShutDown once Shutdown has been called.
func (b *Bus) PublishAsync(messages ...any) error {
	if len(messages) == 0 {
		return nil
	}
	for _, m := range messages {
		if m == nil {
			return nil
		}
	}
	return b.async.publishAsync(messages, b.sinks)
}

// PublishAsyncWithTimeout is PublishAsync bounded by timeout on both the
// free-list wait and the enqueue wait; on timeout the publication is
// dropped and a PublicationError is reported (spec §4.5).
func (b *Bus) PublishAsyncWithTimeout(timeout time.Duration, messages ...any) error {
	if len(messages) == 0 {
		return nil
	}
	for _, m := range messages {
		if m == nil {
			return nil
		}
	}
	return b.async.publishAsyncWithTimeout(messages, timeout, b.sinks)
}

// HasPendingMessages reports whether the asynchronous dispatch queue is
// non-empty (spec §4.5).
func (b *Bus) HasPendingMessages() bool {
	return b.async.hasPendingMessages()
}

// Shutdown stops the asynchronous worker pool, waiting for every worker to
// exit. Idempotent (spec §6); safe to call multiple times or concurrently.
func (b *Bus) Shutdown() {
	b.async.shutdown()
}

// AddErrorHandler registers sink to receive every PublicationError produced
// by handler failures or async-enqueue failures (spec §6/§7). Multiple sinks may be registered; all are invoked.
func (b *Bus) AddErrorHandler(sink ErrorSink) {
	b.sinks.add(sink)
}

// Stats is a point-in-time, read-only snapshot of bus activity, exposed for
// operational visibility (SPEC_FULL.md Supplemented Features). It does not
// affect dispatch semantics.
type Stats struct {
	ListenerClasses int
	PendingAsync    bool
}

// Stats returns a Stats snapshot.
func (b *Bus) Stats() Stats {
	b.registry.mu.RLock()
	classes := len(b.registry.byListenerClass)
	b.registry.mu.RUnlock()

	return Stats{
		ListenerClasses: classes,
		PendingAsync:    b.async.hasPendingMessages(),
	}
}
