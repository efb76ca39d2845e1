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
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// DefaultMaxEntities is the default capacity of a Store.
const DefaultMaxEntities = 5000

// EvictionPolicy decides what happens when a new entity
// arrives at a full store.
type EvictionPolicy string

// Eviction policies.
const (
	// Remove the entity that was least recently observed.
	EvictLeastRecentlySeen EvictionPolicy = "evict"

	// Refuse the new entity with ErrCapacity.
	RejectNew EvictionPolicy = "reject"
)

// ParseEvictionPolicy parses s as an EvictionPolicy. An
// empty string yields the default policy.
func ParseEvictionPolicy(s string) (EvictionPolicy, error) {
	switch EvictionPolicy(s) {
	case "":
		return EvictLeastRecentlySeen, nil
	case EvictLeastRecentlySeen, RejectNew:
		return EvictionPolicy(s), nil
	}
	return "", fmt.Errorf("%w: unknown eviction policy '%s'", ErrInvalid, s)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	MaxEntities int
	Policy      EvictionPolicy
	Logger      *zap.Logger

	// Clock; defaults to time.Now.
	Now func() time.Time
}

// Store holds the deduplicated set of entities, keyed by content
// hash, and the cross-references derived from them. It is safe
// for concurrent use. Values returned by a Store are copies.
type Store struct {
	mu       sync.RWMutex
	entities *simplelru.LRU[string, *Entity] // recency is updated only by observations
	capacity int
	policy   EvictionPolicy
	now      func() time.Time
	log      *zap.Logger
	events   *eventBus

	crossRefs      []CrossReference
	crossRefsValid bool
}

// NewStore returns a new, empty store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.MaxEntities <= 0 {
		opts.MaxEntities = DefaultMaxEntities
	}
	policy, err := ParseEvictionPolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = Log.Named("store")
	}
	lru, err := simplelru.NewLRU[string, *Entity](opts.MaxEntities, nil)
	if err != nil {
		return nil, fmt.Errorf("creating entity index: %w", err)
	}
	return &Store{
		entities: lru,
		capacity: opts.MaxEntities,
		policy:   policy,
		now:      opts.Now,
		log:      opts.Logger,
		events:   newEventBus(),
	}, nil
}

// UpsertResult describes what an Upsert changed.
type UpsertResult struct {
	Created        bool     `json:"created"`
	SourceAdded    bool     `json:"source_added"`
	CrossReference bool     `json:"cross_reference"` // became a cross-reference with this observation
	Evicted        []string `json:"evicted,omitempty"`
}

// Upsert records one observation of the canonical value of type t
// from src. A new entity is created if the (type, value) pair has not
// been seen; otherwise the existing entity is updated. A source that
// matches an existing one on identity, URL, and context is not added
// again, but the observation is still counted.
func (s *Store) Upsert(t EntityType, value string, src Source) (Entity, UpsertResult, error) {
	if _, err := ParseEntityType(string(t)); err != nil {
		return Entity{}, UpsertResult{}, err
	}
	if value == "" {
		return Entity{}, UpsertResult{}, fmt.Errorf("%w: empty entity value", ErrInvalid)
	}
	if src.IdentityID == "" {
		return Entity{}, UpsertResult{}, fmt.Errorf("%w: source has no identity", ErrInvalid)
	}

	hash := ContentHash(t, value)

	s.mu.Lock()
	now := s.now()
	if src.Timestamp.IsZero() {
		src.Timestamp = now
	}

	var result UpsertResult
	ent, ok := s.entities.Get(hash)
	if ok {
		identitiesBefore := len(ent.IdentityIDs())
		if !slices.ContainsFunc(ent.Sources, src.sameAs) {
			ent.Sources = append(ent.Sources, src)
			result.SourceAdded = true
		}
		// counts and times feed the cross-references too
		s.crossRefsValid = false
		ent.OccurrenceCount++
		if now.After(ent.LastSeen) {
			ent.LastSeen = now
		}
		result.CrossReference = identitiesBefore < 2 && len(ent.IdentityIDs()) >= 2
	} else {
		if s.entities.Len() >= s.capacity {
			if s.policy == RejectNew {
				s.mu.Unlock()
				return Entity{}, UpsertResult{}, fmt.Errorf("%w: %d entities", ErrCapacity, s.capacity)
			}
			if oldest, _, ok := s.entities.RemoveOldest(); ok {
				result.Evicted = append(result.Evicted, oldest)
			}
		}
		ent = &Entity{
			Hash:            hash,
			Type:            t,
			Value:           value,
			Sources:         []Source{src},
			FirstSeen:       now,
			LastSeen:        now,
			OccurrenceCount: 1,
		}
		s.entities.Add(hash, ent)
		result.Created = true
		result.SourceAdded = true
		s.crossRefsValid = false
	}
	out := ent.clone()
	s.mu.Unlock()

	events := []Event{{Type: EventEntityUpdated, Time: now, Entity: &out}}
	if result.Created {
		events[0].Type = EventNewEntity
	}
	if result.CrossReference {
		if cr, ok := crossReferenceOf(out); ok {
			events = append(events, Event{Type: EventCrossReference, Time: now, CrossReference: &cr})
		}
		s.log.Info("cross-reference detected",
			zap.String("entity_type", string(t)),
			zap.String("hash", hash),
			zap.Strings("identities", out.IdentityIDs()))
	}
	if len(result.Evicted) > 0 {
		events = append(events, Event{Type: EventEntityEvicted, Time: now, Hashes: result.Evicted})
		s.log.Debug("evicted least recently seen entity", zap.Strings("hashes", result.Evicted))
	}
	s.events.publish(events...)

	return out, result, nil
}

// Get returns the entity with the given hash.
func (s *Store) Get(hash string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entities.Peek(hash)
	if !ok {
		return Entity{}, fmt.Errorf("entity %s: %w", hash, ErrNotFound)
	}
	return ent.clone(), nil
}

// EntityFilter narrows a listing of entities.
type EntityFilter struct {
	Type       EntityType `json:"entity_type,omitempty"`
	IdentityID string     `json:"identity_id,omitempty"`
}

func (f EntityFilter) matches(e *Entity) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.IdentityID != "" && !slices.ContainsFunc(e.Sources, func(s Source) bool { return s.IdentityID == f.IdentityID }) {
		return false
	}
	return true
}

// List returns the entities matching filter, most recently
// seen first.
func (s *Store) List(filter EntityFilter) []Entity {
	s.mu.RLock()
	var out []Entity
	for _, ent := range s.entities.Values() {
		if filter.matches(ent) {
			out = append(out, ent.clone())
		}
	}
	s.mu.RUnlock()

	sortEntities(out)
	return out
}

func sortEntities(ents []Entity) {
	slices.SortFunc(ents, func(a, b Entity) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.Hash, b.Hash)
	})
}

// Len returns the number of entities in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities.Len()
}

// CrossReferences returns every entity observed by two or more
// identities. The result is cached until the next change that
// could affect it.
func (s *Store) CrossReferences() []CrossReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.crossRefsValid {
		all := make([]Entity, 0, s.entities.Len())
		for _, ent := range s.entities.Values() {
			all = append(all, *ent)
		}
		s.crossRefs = CrossReferences(all)
		s.crossRefsValid = true
	}
	out := make([]CrossReference, len(s.crossRefs))
	for i, cr := range s.crossRefs {
		out[i] = cr.clone()
	}
	return out
}

// Annotate applies user-supplied tags, notes, or risk score to
// an entity. It does not count as an observation.
func (s *Store) Annotate(hash string, ann EntityAnnotation) (Entity, error) {
	if ann.RiskScore != nil && (*ann.RiskScore < 0 || *ann.RiskScore > 100) {
		return Entity{}, fmt.Errorf("%w: risk score %d out of range [0, 100]", ErrInvalid, *ann.RiskScore)
	}

	s.mu.Lock()
	ent, ok := s.entities.Peek(hash)
	if !ok {
		s.mu.Unlock()
		return Entity{}, fmt.Errorf("entity %s: %w", hash, ErrNotFound)
	}
	if ann.Tags != nil {
		tags := slices.Clone(ann.Tags)
		slices.Sort(tags)
		ent.Tags = slices.Compact(tags)
	}
	if ann.Notes != nil {
		notes := *ann.Notes
		ent.Notes = &notes
	}
	if ann.RiskScore != nil {
		risk := *ann.RiskScore
		ent.RiskScore = &risk
	}
	out := ent.clone()
	s.mu.Unlock()

	s.events.publish(Event{Type: EventEntityUpdated, Time: s.now(), Entity: &out})
	return out, nil
}

// Delete removes one entity.
func (s *Store) Delete(hash string) error {
	s.mu.Lock()
	if !s.entities.Remove(hash) {
		s.mu.Unlock()
		return fmt.Errorf("entity %s: %w", hash, ErrNotFound)
	}
	s.crossRefsValid = false
	s.mu.Unlock()

	s.events.publish(Event{Type: EventEntityDeleted, Time: s.now(), Hashes: []string{hash}})
	return nil
}

// Clear removes every entity and returns how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := s.entities.Len()
	s.entities.Purge()
	s.crossRefs = nil
	s.crossRefsValid = false
	s.mu.Unlock()

	s.events.publish(Event{Type: EventEntitiesCleared, Time: s.now()})
	return n
}

// Restore loads previously stored entities without emitting events
// or counting observations. Entities are inserted from least to most
// recently seen so that eviction order is preserved; if there are more
// than the store can hold, the least recently seen are dropped and
// their hashes returned.
func (s *Store) Restore(ents []Entity) []string {
	ents = slices.Clone(ents)
	slices.SortStableFunc(ents, func(a, b Entity) int { return a.LastSeen.Compare(b.LastSeen) })

	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []string
	for _, e := range ents {
		if e.Hash == "" {
			e.Hash = ContentHash(e.Type, e.Value)
		}
		if !s.entities.Contains(e.Hash) && s.entities.Len() >= s.capacity {
			if oldest, _, ok := s.entities.RemoveOldest(); ok {
				dropped = append(dropped, oldest)
			}
		}
		restored := e.clone()
		s.entities.Add(e.Hash, &restored)
	}
	s.crossRefsValid = false
	return dropped
}

// Subscribe returns a channel that receives store events until
// the returned function is called.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	return s.events.subscribe(buffer)
}

// StoreStatus summarizes the contents of a store.
type StoreStatus struct {
	EntityCount         int                `json:"entity_count"`
	Capacity            int                `json:"capacity"`
	Policy              EvictionPolicy     `json:"eviction_policy"`
	CrossReferenceCount int                `json:"cross_reference_count"`
	CountsByType        map[EntityType]int `json:"counts_by_type"`
	IdentityCount       int                `json:"identity_count"`
}

// Status returns a summary of the store.
func (s *Store) Status() StoreStatus {
	crossRefs := s.CrossReferences()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := StoreStatus{
		EntityCount:         s.entities.Len(),
		Capacity:            s.capacity,
		Policy:              s.policy,
		CrossReferenceCount: len(crossRefs),
		CountsByType:        make(map[EntityType]int),
	}
	identities := make(map[string]struct{})
	for _, ent := range s.entities.Values() {
		st.CountsByType[ent.Type]++
		for _, src := range ent.Sources {
			identities[src.IdentityID] = struct{}{}
		}
	}
	st.IdentityCount = len(identities)
	return st
}
