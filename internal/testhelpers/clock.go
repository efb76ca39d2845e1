/*
	Madrox
	Copyright (c) 2026 The Madrox Authors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package testhelpers has utilities shared by the tests of several packages.
package testhelpers

import (
	"sync"
	"time"
)

// Epoch is the first time returned by a TickingClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)

// TickingClock returns a clock function that starts at Epoch and
// advances by step on every call after the first, so consecutive
// readings are distinct and ordered. It is safe for concurrent use.
func TickingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := Epoch.Add(-step)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
