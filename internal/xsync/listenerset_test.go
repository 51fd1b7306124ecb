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

package xsync_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/typebus/typebus/internal/xsync"
)

func TestListenerSetAddRemove(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var set xsync.ListenerSet
	is.Equal(0, set.Len())

	a, b := "a", "b"
	set.Add(&a)
	set.Add(&b)
	is.Equal(2, set.Len())

	set.Remove(&a)
	is.Equal(1, set.Len())
	is.Equal([]any{&b}, set.Snapshot())

	// Removing an absent listener is a no-op (P7).
	set.Remove(&a)
	is.Equal(1, set.Len())
}

func TestListenerSetDuplicateAllowed(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var set xsync.ListenerSet
	listener := "shared"
	set.Add(&listener)
	set.Add(&listener)
	is.Equal(2, set.Len())
}

func TestListenerSetConcurrentAddSnapshot(t *testing.T) {
	t.Parallel()
	is := assert.New(t)

	var set xsync.ListenerSet
	var wg sync.WaitGroup

	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v := i
			set.Add(&v)
			_ = set.Snapshot() // must never race or panic
		}(i)
	}
	wg.Wait()

	is.Equal(n, set.Len())
}
