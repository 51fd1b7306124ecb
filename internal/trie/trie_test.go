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

package trie_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/typebus/typebus/internal/trie"
)

func TestTrieSetGetDelete(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	tr := trie.New[string]()

	intType := reflect.TypeOf(0)
	strType := reflect.TypeOf("")

	_, ok := tr.Get([]reflect.Type{intType, strType})
	is.False(ok)

	tr.Set([]reflect.Type{intType, strType}, "int-string")
	tr.Set([]reflect.Type{intType}, "int-only")

	v, ok := tr.Get([]reflect.Type{intType, strType})
	is.True(ok)
	is.Equal("int-string", v)

	v, ok = tr.Get([]reflect.Type{intType})
	is.True(ok)
	is.Equal("int-only", v)

	tr.Delete([]reflect.Type{intType, strType})
	_, ok = tr.Get([]reflect.Type{intType, strType})
	is.False(ok)

	// Deleting a leaf must not remove an unrelated prefix's own value.
	v, ok = tr.Get([]reflect.Type{intType})
	is.True(ok)
	is.Equal("int-only", v)
}

func TestTrieKeyOrderMatters(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	tr := trie.New[int]()
	intType := reflect.TypeOf(0)
	strType := reflect.TypeOf("")

	tr.Set([]reflect.Type{intType, strType}, 1)
	tr.Set([]reflect.Type{strType, intType}, 2)

	v, ok := tr.Get([]reflect.Type{intType, strType})
	is.True(ok)
	is.Equal(1, v)

	v, ok = tr.Get([]reflect.Type{strType, intType})
	is.True(ok)
	is.Equal(2, v)
}

func TestTrieKeys(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	tr := trie.New[int]()
	intType := reflect.TypeOf(0)
	strType := reflect.TypeOf("")

	tr.Set([]reflect.Type{intType}, 1)
	tr.Set([]reflect.Type{intType, strType}, 2)

	keys := tr.Keys()
	is.Len(keys, 2)
}
