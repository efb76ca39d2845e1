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

import (
	"sync"
	"time"
)

// EventType describes a change to the hivemind.
type EventType string

// Event types.
const (
	EventNewEntity       EventType = "new_entity"
	EventEntityUpdated   EventType = "entity_updated"
	EventCrossReference  EventType = "cross_reference"
	EventEntityEvicted   EventType = "entity_evicted"
	EventEntityDeleted   EventType = "entity_deleted"
	EventEntitiesCleared EventType = "entities_cleared"
)

// Event is a notification of a change to the entity store.
type Event struct {
	Type           EventType       `json:"type"`
	Time           time.Time       `json:"time"`
	Entity         *Entity         `json:"entity,omitempty"`
	CrossReference *CrossReference `json:"cross_reference,omitempty"`
	Hashes         []string        `json:"hashes,omitempty"`
}

// eventBus fans events out to subscribers. Delivery is best-effort:
// a subscriber whose buffer is full misses the event rather than
// stalling the writer.
type eventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]chan Event)}
}

// subscribe returns a channel of future events and a function
// that ends the subscription and closes the channel.
func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *eventBus) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ev := range events {
		for _, ch := range b.subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
