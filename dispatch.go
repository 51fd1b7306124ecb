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

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// deadMessageType is registered once so subscriptionsExact(DeadMessage) can
// be resolved without reflect.TypeOf on every dead-lettered publication.
var deadMessageType = reflect.TypeOf(DeadMessage{})

// dispatcher is the Dispatch Core (spec §4.4). It owns no state of its own
// beyond references to the registry and the observability/error-reporting
// collaborators a Bus wires it to; one dispatcher per Bus.
type dispatcher struct {
	registry *registry
	sinks    *errorSinks
	obs      *observability
}

// publishTuple runs the full exact→super→varArg→dead-letter algorithm (spec
// §4.4) for one published tuple and reports any handler failure to the
// registered error sinks. It never returns an error to its own caller: spec
// §7 forbids a handler failure from propagating past publish*.
func (d *dispatcher) publishTuple(ctx context.Context, values []any) {
	types := make([]reflect.Type, len(values))
	for i, v := range values {
		types[i] = reflect.TypeOf(v)
	}

	ctx, span := d.obs.startDispatchSpan(ctx, types)
	defer span.End()

	start := d.obs.dispatchClock()
	defer func() { d.obs.recordDispatchLatency(start) }()

	args := make([]reflect.Value, len(values))
	for i, v := range values {
		args[i] = reflect.ValueOf(v)
	}

	var exact, supers, vaExact, vaSuper []*Subscription

	if len(values) == 1 {
		exact = d.registry.subscriptionsExact(types[0])
		supers = d.registry.subscriptionsSuper(types[0])

		if d.registry.mayHaveVarArgHandlers() && !isArrayType(types[0]) {
			vaExact = d.registry.varArgExactFor(types[0])
			vaSuper = d.registry.varArgSuperFor(types[0])
		}
	} else {
		exact = d.registry.subscriptionsExactTuple(types)
		supers = d.registry.subscriptionsSuperTuple(types)

		if d.registry.mayHaveVarArgHandlers() && len(values) >= 4 && sameRuntimeType(values) {
			vaExact = d.registry.varArgExactFor(types[0])
			vaSuper = d.registry.varArgSuperFor(types[0])
		}
	}

	matched := len(exact) > 0 || len(supers) > 0 || len(vaExact) > 0 || len(vaSuper) > 0

	report := func(listener any, err error) {
		d.obs.logHandlerFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.sinks.dispatch(PublicationError{
			ID:             uuid.New(),
			Message:        "handler invocation failed",
			Cause:          err,
			PublishedTuple: values,
		})
	}

	for _, sub := range exact {
		sub.publish(args, report)
	}
	for _, sub := range supers {
		sub.publish(args, report)
	}

	// Each matched varArg subscription builds its own slice from args,
	// using its own declared element type (handler_provider.go's invoke):
	// subscriptions in vaExact/vaSuper may have been declared on different
	// element types (e.g. a super match S1 and S2 both supertypes of T),
	// so there is no single shared slice value to precompute here. A
	// subscription whose declared slice type already matches the
	// original array-typed publish receives it verbatim (P4's
	// no-rewrapping rule); see handler_provider.go.
	for _, sub := range vaExact {
		sub.publish(args, report)
	}
	for _, sub := range vaSuper {
		sub.publish(args, report)
	}

	d.obs.recordDispatch(len(exact)+len(supers)+len(vaExact)+len(vaSuper), !matched)

	// Dead-letter fires only when nothing matched at all: presence of a
	// super or varArg match suppresses it even though exact is empty
	// (spec §4.4 step 6).
	if !matched {
		d.dispatchDeadLetter(values, report)
	}
}

// dispatchDeadLetter implements spec §4.4 step 6. Callers must only invoke
// this once none of exact/super/varArg matched anything.
func (d *dispatcher) dispatchDeadLetter(values []any, report func(listener any, err error)) {
	deadSubs := d.registry.subscriptionsExact(deadMessageType)
	if len(deadSubs) == 0 {
		return
	}

	dm := DeadMessage{Published: values}
	args := []reflect.Value{reflect.ValueOf(dm)}

	for _, sub := range deadSubs {
		sub.publish(args, report)
	}
}

func isArrayType(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Slice
}

func sameRuntimeType(values []any) bool {
	if len(values) == 0 {
		return false
	}
	first := reflect.TypeOf(values[0])
	for _, v := range values[1:] {
		if reflect.TypeOf(v) != first {
			return false
		}
	}
	return true
}

// spanAttributes builds the otel span attribute set describing a publish
// call's message-type tuple (DOMAIN STACK: otel instrumentation).
func spanAttributes(types []reflect.Type) []attribute.KeyValue {
	names := lo.Map(types, func(t reflect.Type, _ int) string {
		if t == nil {
			return "<nil>"
		}
		return t.String()
	})
	return []attribute.KeyValue{
		attribute.StringSlice("typebus.message_types", names),
		attribute.Int("typebus.arity", len(types)),
	}
}
