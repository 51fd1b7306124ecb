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

	"github.com/typebus/typebus/handlerscan"
)

// defaultProvider adapts handlerscan.Scanner to the HandlerMetadataProvider
// collaborator interface, turning each discovered method into an immutable
// HandlerMetadata with a working reflect-based invoker.
type defaultProvider struct {
	scanner *handlerscan.Scanner
}

func newDefaultProvider(prefix string) *defaultProvider {
	s := handlerscan.New()
	if prefix != "" {
		s = handlerscan.WithPrefix(prefix)
	}
	return &defaultProvider{scanner: s}
}

// HandlersOf implements HandlerMetadataProvider.
func (p *defaultProvider) HandlersOf(listenerClass reflect.Type) ([]HandlerMetadata, error) {
	scanned := p.scanner.Scan(listenerClass)
	metadata := make([]HandlerMetadata, 0, len(scanned))

	for _, h := range scanned {
		method := h.Method

		metadata = append(metadata, HandlerMetadata{
			ListenerClass:   listenerClass,
			MethodName:      h.MethodName,
			Arity:           arityOf(h),
			ParamTypes:      h.ParamTypes,
			AcceptsSubtypes: h.AcceptsSubtypes,
			AcceptsVarArgs:  h.AcceptsVarArgs,
			invoke: func(listener reflect.Value, args []reflect.Value) error {
				if h.AcceptsVarArgs {
					// The dispatch core passes one reflect.Value per
					// published message, never a pre-built slice: the
					// declared slice type differs per subscription (a
					// super-match may be declared on a different element
					// type than an exact match), so only this invoker,
					// which knows its own method's variadic parameter
					// type, can build the right slice. When args already
					// *is* that exact slice type (an array-typed publish
					// matched verbatim), it is passed through unchanged —
					// no rewrapping (spec P4).
					sliceType := method.Type.In(method.Type.NumIn() - 1)

					if len(args) == 1 && args[0].IsValid() && args[0].Type() == sliceType {
						method.Func.CallSlice([]reflect.Value{listener, args[0]})
						return nil
					}

					slice := reflect.MakeSlice(sliceType, len(args), len(args))
					for i, a := range args {
						slice.Index(i).Set(a)
					}
					method.Func.CallSlice([]reflect.Value{listener, slice})
					return nil
				}

				in := make([]reflect.Value, 0, len(args)+1)
				in = append(in, listener)
				in = append(in, args...)
				method.Func.Call(in)
				return nil
			},
		})
	}

	return metadata, nil
}

func arityOf(h handlerscan.Handler) Arity {
	if h.AcceptsVarArgs {
		return ArityVariadic
	}

	switch len(h.ParamTypes) {
	case 1:
		return ArityOne
	case 2:
		return ArityTwo
	case 3:
		return ArityThree
	default:
		return ArityVariadic
	}
}
