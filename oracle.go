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
)

// typeOracle is the Type Hierarchy Oracle (spec §4.1). Go has no class
// hierarchy, so "supertype" is re-expressed as Go interface satisfaction:
// superTypes(T) is the set of interface types, among those ever declared by
// a registered handler, that T implements. The set of declared interfaces
// only grows over the life of a process (handlers are registered, never
// forgotten — spec §3 Lifecycle), so per-type results are memoized
// permanently relative to the interface universe at computation time; a
// version counter invalidates only entries computed before the most recent
// new interface was registered.
type typeOracle struct {
	mu         sync.RWMutex
	interfaces []reflect.Type // declared interface types, in registration order
	version    uint64

	superCache sync.Map // reflect.Type -> *superEntry
	arrayCache sync.Map // reflect.Type -> reflect.Type
}

type superEntry struct {
	version uint64
	types   []reflect.Type
}

func newTypeOracle() *typeOracle {
	return &typeOracle{}
}

// registerDeclaredType records a handler's declared parameter type. If it is
// an interface type not seen before, it joins the supertype universe and the
// oracle's version is bumped so stale per-type caches recompute on next use.
func (o *typeOracle) registerDeclaredType(t reflect.Type) {
	if t == nil || t.Kind() != reflect.Interface {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, existing := range o.interfaces {
		if existing == t {
			return
		}
	}

	o.interfaces = append(o.interfaces, t)
	atomic.AddUint64(&o.version, 1)
}

// superTypes returns, in deterministic (first-registered) order, every
// registered interface type that t implements. t itself is excluded: a
// concrete struct type never equals one of the registered interfaces, and if
// t is itself an interface it is excluded by identity comparison below.
func (o *typeOracle) superTypes(t reflect.Type) []reflect.Type {
	currentVersion := atomic.LoadUint64(&o.version)

	if cached, ok := o.superCache.Load(t); ok {
		entry := cached.(*superEntry)
		if entry.version == currentVersion {
			return entry.types
		}
	}

	o.mu.RLock()
	interfaces := make([]reflect.Type, len(o.interfaces))
	copy(interfaces, o.interfaces)
	o.mu.RUnlock()

	var supers []reflect.Type
	for _, iface := range interfaces {
		if iface == t {
			continue
		}
		if t != nil && t.Implements(iface) {
			supers = append(supers, iface)
		}
	}

	o.superCache.Store(t, &superEntry{version: currentVersion, types: supers})

	return supers
}

// arrayOf returns the slice type whose element type is t, memoized
// permanently (slice-of-T types are immutable for a fixed T).
func (o *typeOracle) arrayOf(t reflect.Type) reflect.Type {
	if cached, ok := o.arrayCache.Load(t); ok {
		return cached.(reflect.Type)
	}

	arr := reflect.SliceOf(t)
	actual, _ := o.arrayCache.LoadOrStore(t, arr)

	return actual.(reflect.Type)
}
