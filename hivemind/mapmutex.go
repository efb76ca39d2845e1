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

package hivemind

import "sync"

// mapMutex locks by key, so that unrelated keys can be held
// at the same time while each key has at most one holder.
// Modified from https://medium.com/@petrlozhkin/kmutex-lock-mutex-by-unique-id-408467659c24
type mapMutex[K comparable] struct {
	cond *sync.Cond
	held map[K]struct{}
}

func newMapMutex[K comparable]() *mapMutex[K] {
	return &mapMutex[K]{
		cond: sync.NewCond(new(sync.Mutex)),
		held: make(map[K]struct{}),
	}
}

func (mmu *mapMutex[K]) Lock(key K) {
	mmu.cond.L.Lock()
	defer mmu.cond.L.Unlock()
	for mmu.locked(key) {
		mmu.cond.Wait()
	}
	mmu.held[key] = struct{}{}
}

func (mmu *mapMutex[K]) Unlock(key K) {
	mmu.cond.L.Lock()
	defer mmu.cond.L.Unlock()
	delete(mmu.held, key)
	mmu.cond.Broadcast()
}

// with runs fn while holding key.
func (mmu *mapMutex[K]) with(key K, fn func() error) error {
	mmu.Lock(key)
	defer mmu.Unlock(key)
	return fn()
}

func (mmu *mapMutex[K]) locked(key K) bool {
	_, ok := mmu.held[key]
	return ok
}
