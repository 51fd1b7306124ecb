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

	"github.com/samber/lo"

	"github.com/typebus/typebus/internal/trie"
)

// registry is the Subscription Registry (spec §3/§4.3): the authoritative
// index from listener class and from message-type (tuple) to the
// Subscriptions that may match it, plus the Supertype and VarArg caches
// that make repeated dispatch lookups cheap.
//
// The main tables are guarded by a single reader-writer lock (spec §5):
// readers are every subscriptions* query and the Dispatch Core's snapshot;
// writers are subscribe, unsubscribe, and cache invalidation — both of the
// latter clear the caches while still holding mu for writing
// (clearCachesLocked). The three caches live behind their own mutex,
// separate from the main table lock, so that a cache-miss computation
// (which itself calls back into the table reader path) never tries to
// re-acquire a lock it already holds; every subscriptionsSuper/varArg*
// reader holds mu.RLock across its entire check-compute-store sequence so a
// concurrent cache clear can never land between its compute and its store
// and leave a stale entry behind (I3/P6).
type registry struct {
	provider HandlerMetadataProvider
	oracle   *typeOracle

	mu              sync.RWMutex
	byListenerClass map[reflect.Type][]*Subscription
	bySingleType    map[reflect.Type][]*Subscription
	byTupleTrie     *trie.Trie[[]*Subscription]
	byTupleArity    map[int][]*Subscription // tuple subs only, for super-tuple scans
	nonListeners    map[reflect.Type]bool

	cacheMu         sync.Mutex
	superCache      map[reflect.Type][]*Subscription
	superTupleCache *trie.Trie[[]*Subscription]
	varArgExact     map[reflect.Type][]*Subscription
	varArgSuper     map[reflect.Type][]*Subscription

	hasVarArgHandlers atomic.Bool
}

func newRegistry(provider HandlerMetadataProvider) *registry {
	return &registry{
		provider:        provider,
		oracle:          newTypeOracle(),
		byListenerClass: make(map[reflect.Type][]*Subscription),
		bySingleType:    make(map[reflect.Type][]*Subscription),
		byTupleTrie:     trie.New[[]*Subscription](),
		byTupleArity:    make(map[int][]*Subscription),
		nonListeners:    make(map[reflect.Type]bool),
		superCache:      make(map[reflect.Type][]*Subscription),
		superTupleCache: trie.New[[]*Subscription](),
		varArgExact:     make(map[reflect.Type][]*Subscription),
		varArgSuper:     make(map[reflect.Type][]*Subscription),
	}
}

// subscribe implements spec §4.3's subscribe algorithm.
func (r *registry) subscribe(listener any) error {
	class := reflect.TypeOf(listener)

	r.mu.RLock()
	isNonListener := r.nonListeners[class]
	r.mu.RUnlock()
	if isNonListener {
		return nil
	}

	r.mu.RLock()
	existing, ok := r.byListenerClass[class]
	r.mu.RUnlock()
	if ok {
		for _, sub := range existing {
			sub.Subscribe(listener)
		}
		return nil
	}

	metadata, err := r.provider.HandlersOf(class)
	if err != nil {
		return err
	}

	if len(metadata) == 0 {
		r.mu.Lock()
		r.nonListeners[class] = true
		r.mu.Unlock()
		return nil
	}

	for _, m := range metadata {
		for _, pt := range m.ParamTypes {
			r.oracle.registerDeclaredType(pt)
		}
	}

	provisional := make([]*Subscription, len(metadata))
	for i, m := range metadata {
		sub := newSubscription(m)
		sub.Subscribe(listener)
		provisional[i] = sub
	}

	r.mu.Lock()

	if winning, ok := r.byListenerClass[class]; ok {
		// Lost the race: another goroutine installed this class first.
		r.mu.Unlock()
		for _, sub := range winning {
			sub.Subscribe(listener)
		}
		return nil
	}

	for _, sub := range provisional {
		r.insertLocked(sub)
	}
	r.byListenerClass[class] = provisional

	r.clearCachesLocked()
	r.mu.Unlock()

	return nil
}

// insertLocked indexes sub into bySingleType or byTupleTrie/byTupleArity
// according to its arity. Caller holds the write lock.
func (r *registry) insertLocked(sub *Subscription) {
	m := sub.Metadata

	switch m.Arity {
	case ArityOne:
		key := m.ParamTypes[0]
		r.bySingleType[key] = append(r.bySingleType[key], sub)
	case ArityVariadic:
		key := r.oracle.arrayOf(m.ParamTypes[0])
		r.bySingleType[key] = append(r.bySingleType[key], sub)
	default: // ArityTwo, ArityThree
		existing, _ := r.byTupleTrie.Get(m.ParamTypes)
		r.byTupleTrie.Set(m.ParamTypes, append(existing, sub))
		r.byTupleArity[len(m.ParamTypes)] = append(r.byTupleArity[len(m.ParamTypes)], sub)
	}

	if m.AcceptsVarArgs {
		r.hasVarArgHandlers.Store(true)
	}
}

// unsubscribe implements spec §4.3's unsubscribe algorithm: no table
// mutation, only listener removal from existing Subscriptions plus cache
// invalidation (I3). Runs under the write lock end-to-end (spec §5: cache
// clears are a writer operation, same as subscribe), even though the main
// tables themselves are untouched — otherwise a subscriptionsSuper/varArg
// reader could recompute from a pre-unsubscribe snapshot and store it into
// the cache after this clear, resurrecting a stale entry.
func (r *registry) unsubscribe(listener any) {
	class := reflect.TypeOf(listener)

	r.mu.Lock()
	defer r.mu.Unlock()

	isNonListener := r.nonListeners[class]
	subs, ok := r.byListenerClass[class]
	if isNonListener || !ok {
		return
	}

	for _, sub := range subs {
		sub.Unsubscribe(listener)
	}

	r.clearCachesLocked()
}

// clearCachesLocked clears the supertype/varArg caches (I3). The caller
// must already hold mu for writing: cache clears are a writer operation
// (spec §5), serialized against the main tables exactly like subscribe and
// unsubscribe so that no reader can straddle a clear — see subscriptionsSuper
// et al., which hold mu.RLock for their entire compute-then-store sequence.
func (r *registry) clearCachesLocked() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.superCache = make(map[reflect.Type][]*Subscription)
	r.superTupleCache = trie.New[[]*Subscription]()
	r.varArgExact = make(map[reflect.Type][]*Subscription)
	r.varArgSuper = make(map[reflect.Type][]*Subscription)
}

// subscriptionsExact returns the exact single-type match for t (spec §4.3).
func (r *registry) subscriptionsExact(t reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.bySingleType[t]
}

// subscriptionsExactTuple returns the exact tuple match for types.
func (r *registry) subscriptionsExactTuple(types []reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, _ := r.byTupleTrie.Get(types)
	return subs
}

// subscriptionsSuper returns the supertype-matched subscriptions for t,
// memoized in superCache until the next subscribe/unsubscribe (I3/P6). The
// whole check-compute-store sequence runs under mu.RLock: subscribe and
// unsubscribe clear the cache under mu's write side (clearCachesLocked), so
// holding the read side here for the entire sequence — not just the
// compute — is what keeps a clear from landing between this function's
// compute and its store and leaving a stale entry behind (spec §5, I3).
func (r *registry) subscriptionsSuper(t reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.cacheMu.Lock()
	if cached, ok := r.superCache[t]; ok {
		r.cacheMu.Unlock()
		return cached
	}
	r.cacheMu.Unlock()

	var result []*Subscription
	for _, s := range r.oracle.superTypes(t) {
		result = append(result, lo.Filter(r.bySingleType[s], func(sub *Subscription, _ int) bool {
			return sub.Metadata.AcceptsSubtypes
		})...)
	}

	r.cacheMu.Lock()
	r.superCache[t] = result
	r.cacheMu.Unlock()

	return result
}

// subscriptionsSuperTuple returns the tuple supertype match (spec §4.3): the
// same-arity tuple subscriptions whose declared parameter types are each
// either exactly equal to, or an interface implemented by, the
// corresponding published type, and at least one position used the
// interface (strict-supertype) relation rather than equality — otherwise
// the tuple would already have been found by subscriptionsExactTuple.
func (r *registry) subscriptionsSuperTuple(types []reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.cacheMu.Lock()
	if cached, ok := r.superTupleCache.Get(types); ok {
		r.cacheMu.Unlock()
		return cached
	}
	r.cacheMu.Unlock()

	arity := len(types)
	candidates := r.byTupleArity[arity]
	result := make([]*Subscription, 0, len(candidates))

	for _, sub := range candidates {
		declared := sub.Metadata.ParamTypes
		matched := true
		usedSuper := false

		for i, dt := range declared {
			switch {
			case dt == types[i]:
				// position matches exactly
			case dt.Kind() == reflect.Interface && types[i] != nil && types[i].Implements(dt):
				usedSuper = true
			default:
				matched = false
			}
			if !matched {
				break
			}
		}

		if matched && usedSuper {
			result = append(result, sub)
		}
	}

	r.cacheMu.Lock()
	r.superTupleCache.Set(types, result)
	r.cacheMu.Unlock()

	return result
}

// varArgExactFor returns subscriptions declared exactly T[] with
// AcceptsVarArgs (spec §4.3).
func (r *registry) varArgExactFor(t reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.cacheMu.Lock()
	if cached, ok := r.varArgExact[t]; ok {
		r.cacheMu.Unlock()
		return cached
	}
	r.cacheMu.Unlock()

	arrType := r.oracle.arrayOf(t)
	result := lo.Filter(r.bySingleType[arrType], func(sub *Subscription, _ int) bool {
		return sub.Metadata.AcceptsVarArgs
	})

	r.cacheMu.Lock()
	r.varArgExact[t] = result
	r.cacheMu.Unlock()

	return result
}

// varArgSuperFor returns subscriptions declared S[] with
// AcceptsSubtypes && AcceptsVarArgs, for S a proper supertype of t (spec
// §4.3). Go has no array covariance (unlike the Java source this spec
// generalizes), so "supertype of the array type" is computed at the
// element level: S ranges over the oracle's superTypes(t), and each
// candidate array type is arrayOf(S) — see SPEC_FULL.md's REDESIGN NOTE.
func (r *registry) varArgSuperFor(t reflect.Type) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.cacheMu.Lock()
	if cached, ok := r.varArgSuper[t]; ok {
		r.cacheMu.Unlock()
		return cached
	}
	r.cacheMu.Unlock()

	var result []*Subscription
	for _, s := range r.oracle.superTypes(t) {
		arrType := r.oracle.arrayOf(s)
		result = append(result, lo.Filter(r.bySingleType[arrType], func(sub *Subscription, _ int) bool {
			return sub.Metadata.AcceptsSubtypes && sub.Metadata.AcceptsVarArgs
		})...)
	}

	r.cacheMu.Lock()
	r.varArgSuper[t] = result
	r.cacheMu.Unlock()

	return result
}

// mayHaveVarArgHandlers is the monotone varArg-possibility flag (spec I5):
// once true, it is never reset, avoiding per-publish cache misses on the
// common case where no handler ever declared a variadic parameter.
func (r *registry) mayHaveVarArgHandlers() bool {
	return r.hasVarArgHandlers.Load()
}
