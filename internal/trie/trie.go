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

// Package trie implements the shallow trie keyed by an ordered sequence of
// reflect.Type identities, used by the Subscription Registry's byTupleTrie
// (spec §3/§4.3, design note "Trie for tuple keys"). Type identities are
// pointer-stable Go runtime values, so they key each trie level directly.
package trie

import "reflect"

// Trie maps an ordered []reflect.Type key to a value of type V.
type Trie[V any] struct {
	root *node[V]
}

type node[V any] struct {
	children map[reflect.Type]*node[V]
	value    V
	hasValue bool
}

func newNode[V any]() *node[V] {
	return &node[V]{children: make(map[reflect.Type]*node[V])}
}

// New creates an empty trie.
func New[V any]() *Trie[V] {
	return &Trie[V]{root: newNode[V]()}
}

// Get returns the value stored at key and whether it was present.
func (t *Trie[V]) Get(key []reflect.Type) (V, bool) {
	n := t.root
	for _, k := range key {
		child, ok := n.children[k]
		if !ok {
			var zero V
			return zero, false
		}
		n = child
	}

	return n.value, n.hasValue
}

// Set stores value at key, creating intermediate nodes as needed.
func (t *Trie[V]) Set(key []reflect.Type, value V) {
	n := t.root
	for _, k := range key {
		child, ok := n.children[k]
		if !ok {
			child = newNode[V]()
			n.children[k] = child
		}
		n = child
	}

	n.value = value
	n.hasValue = true
}

// Delete removes the value stored at key, if any. Intermediate nodes are
// left in place (tuple arities in this registry are small and stable, so
// pruning is not worth the complexity).
func (t *Trie[V]) Delete(key []reflect.Type) {
	n := t.root
	for _, k := range key {
		child, ok := n.children[k]
		if !ok {
			return
		}
		n = child
	}

	var zero V
	n.value = zero
	n.hasValue = false
}

// Keys returns every key currently holding a value, in unspecified order.
func (t *Trie[V]) Keys() [][]reflect.Type {
	var out [][]reflect.Type
	var walk func(n *node[V], prefix []reflect.Type)
	walk = func(n *node[V], prefix []reflect.Type) {
		if n.hasValue {
			cp := make([]reflect.Type, len(prefix))
			copy(cp, prefix)
			out = append(out, cp)
		}
		for k, child := range n.children {
			walk(child, append(prefix, k))
		}
	}
	walk(t.root, nil)

	return out
}
