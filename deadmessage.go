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

// DeadMessage wraps a publication that matched no subscription at all —
// no exact, supertype, or varArg match (spec §4.4 step 6, §6, P5); a
// supertype or varArg match alone suppresses it. Consumers subscribe to
// DeadMessage exactly;
// no subtype or varArg expansion ever applies to DeadMessage itself.
type DeadMessage struct {
	// Published holds the originally-published tuple, in publish order.
	// Len is 1, 2, or 3 for the fixed-arity publish calls and any length
	// for the variadic publish call.
	Published []any
}

// First returns the first (and, for single-argument publishes, only)
// published value, or nil if Published is empty.
func (d DeadMessage) First() any {
	if len(d.Published) == 0 {
		return nil
	}
	return d.Published[0]
}
