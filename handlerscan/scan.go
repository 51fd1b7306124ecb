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

// Package handlerscan is the default implementation of the external
// "handler provider" collaborator from spec §6. Listener annotation
// scanning is explicitly out of scope for the dispatch core (spec §1); this
// package supplies the concrete, opaque-from-the-core-s-point-of-view
// default: reflection over a listener's method set, driven by a naming
// convention instead of Java-style method annotations (see SPEC_FULL.md's
// REDESIGN NOTE).
package handlerscan

import (
	"reflect"
	"strings"
)

// Handler is the scanner's own description of a matched method, independent
// of the core's HandlerMetadata type so this package has no import-cycle
// dependency on the root package.
type Handler struct {
	MethodName      string
	ParamTypes      []reflect.Type
	AcceptsSubtypes bool
	AcceptsVarArgs  bool
	Method          reflect.Method
}

// Scanner discovers handler methods on listener types by name prefix.
type Scanner struct {
	// Prefix is the method-name prefix that marks a handler. Default "On".
	Prefix string
}

// New creates a Scanner using the default "On" prefix.
func New() *Scanner {
	return &Scanner{Prefix: "On"}
}

// WithPrefix returns a Scanner using the given method-name prefix.
func WithPrefix(prefix string) *Scanner {
	return &Scanner{Prefix: prefix}
}

// Scan enumerates listenerClass's method set and returns every method that:
//   - has an exported name starting with s.Prefix (and is longer than the
//     prefix, so the prefix alone does not qualify),
//   - declares 1, 2, or 3 non-receiver parameters, or is a Go variadic
//     method whose only parameter is the variadic slot (arbitrary arity).
//
// A method with zero declared parameters, more than 3 fixed parameters, or
// fixed parameters ahead of a variadic one is not a handler and is skipped.
// Methods are returned in Go's deterministic method-set order (lexical by
// name).
func (s *Scanner) Scan(listenerClass reflect.Type) []Handler {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "On"
	}

	var handlers []Handler

	numMethod := listenerClass.NumMethod()
	for i := 0; i < numMethod; i++ {
		method := listenerClass.Method(i)

		if !strings.HasPrefix(method.Name, prefix) || len(method.Name) == len(prefix) {
			continue
		}

		// method.Type includes the receiver as the first "in" parameter for
		// a method obtained from a Type (as opposed to a Value).
		numIn := method.Type.NumIn() - 1
		if numIn == 0 {
			continue
		}

		variadic := method.Type.IsVariadic()

		if variadic && numIn != 1 {
			// Only homogeneous variadic handlers (spec's "declared T[]")
			// are supported; a mix of fixed leading parameters and a
			// variadic tail is outside spec scope.
			continue
		}

		if !variadic && numIn > 3 {
			continue
		}

		paramTypes := make([]reflect.Type, 0, numIn)
		acceptsSubtypes := false

		for p := 0; p < numIn; p++ {
			paramType := method.Type.In(p + 1)

			if variadic && p == numIn-1 {
				// The variadic parameter's static type is []T; the declared
				// element type is T.
				paramType = paramType.Elem()
			}

			// A handler "accepts subtypes" (spec's per-handler flag) the
			// moment any one of its declared parameter positions is an
			// interface type: that position is where Go's structural typing
			// stands in for Java's class-hierarchy dispatch (see
			// SPEC_FULL.md's REDESIGN NOTE). A concrete-typed position is
			// always exact-only, independently of this flag — the registry
			// checks each position's own kind, not a single handler-wide
			// switch.
			if paramType.Kind() == reflect.Interface {
				acceptsSubtypes = true
			}

			paramTypes = append(paramTypes, paramType)
		}

		if variadic {
			// A variadic handler's declared tuple is its single element
			// type, repeated implicitly — spec's "declared T[]" shape.
			paramTypes = paramTypes[len(paramTypes)-1:]
		}

		handlers = append(handlers, Handler{
			MethodName:      method.Name,
			ParamTypes:      paramTypes,
			AcceptsSubtypes: acceptsSubtypes,
			AcceptsVarArgs:  variadic,
			Method:          method,
		})
	}

	return handlers
}
