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
	"reflect"

	"github.com/samber/lo"

	"github.com/typebus/typebus/internal/xerrors"
)

// Arity is the declared parameter count of a handler. ArityVariadic covers
// the spec's "variadic" publish(m1,...,mk) case, modeled as a Go variadic
// method.
type Arity int

const (
	ArityOne Arity = iota + 1
	ArityTwo
	ArityThree
	ArityVariadic
)

// HandlerMetadata is the immutable per-handler record described in spec §3.
// It is produced by a HandlerMetadataProvider (the out-of-scope external
// collaborator, §6) and consumed by the Subscription Registry.
type HandlerMetadata struct {
	// ListenerClass identifies the listener's concrete type.
	ListenerClass reflect.Type
	// MethodName names the handler method, used for diagnostics and as part
	// of the (listener-class, handler-method) identity of a Subscription.
	MethodName string
	// Arity is the handler's declared parameter count.
	Arity Arity
	// ParamTypes is the ordered declared parameter type sequence. For
	// ArityVariadic, ParamTypes holds the single element type (not the slice
	// type); AcceptsVarArgs is always true in that case.
	ParamTypes []reflect.Type
	// AcceptsSubtypes is true iff at least one declared parameter type is a
	// Go interface type; matching itself is always per-position (see
	// SPEC_FULL.md's REDESIGN NOTE).
	AcceptsSubtypes bool
	// AcceptsVarArgs is true iff the handler method is a Go variadic method.
	AcceptsVarArgs bool

	// invoke applies the handler to a listener instance and an argument
	// tuple. A panic raised by the handler propagates out of invoke; Invoke
	// is the wrapper that recovers it into an error.
	invoke func(listener reflect.Value, args []reflect.Value) error
}

// HandlerMetadataProvider is the external collaborator from spec §6:
// "handlersOf(ListenerClass) -> sequence of HandlerMetadata". It is
// consumed as opaque by the registry; typebus ships a default
// implementation built on handlerscan.Scanner, which uses reflection and a
// method-name convention.
type HandlerMetadataProvider interface {
	HandlersOf(listenerClass reflect.Type) ([]HandlerMetadata, error)
}

// Invoke calls the handler on listener with args, recovering any panic into
// an error instead of letting it escape (spec §7: handler failures never
// propagate past publish*).
func (m HandlerMetadata) Invoke(listener reflect.Value, args []reflect.Value) (err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			return m.invoke(listener, args)
		},
		func(r any) {
			err = fmt.Errorf("typebus: handler %s.%s panicked: %w", m.ListenerClass, m.MethodName, xerrors.RecoverToError(r))
		},
	)

	return err
}

// key identifies the (listener-class, handler-method) pair that a
// Subscription is created for exactly once (spec §3 Lifecycle).
func (m HandlerMetadata) key() subscriptionKey {
	return subscriptionKey{class: m.ListenerClass, method: m.MethodName}
}

type subscriptionKey struct {
	class  reflect.Type
	method string
}
