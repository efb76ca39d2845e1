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
	"testing"
	"time"

	"github.com/madrox-osint/madrox/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeClock returns a clock that advances by one second on every reading.
func fakeClock() func() time.Time {
	return testhelpers.TickingClock(time.Second)
}

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fakeClock()
	}
	opts.Logger = zaptest.NewLogger(t)
	s, err := NewStore(opts)
	require.NoError(t, err)
	return s
}

func TestStoreUpsertIsIdempotentForSameSource(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	src := Source{IdentityID: "prime", URL: "https://a.example", Context: "ctx"}

	first, res, err := s.Upsert(EntityEmail, "x@y.com", src)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.SourceAdded)

	second, res, err := s.Upsert(EntityEmail, "x@y.com", src)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.SourceAdded)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, first.Hash, second.Hash)
	assert.Len(t, second.Sources, 1)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.True(t, second.LastSeen.After(second.FirstSeen))
	assert.Equal(t, first.FirstSeen, second.FirstSeen)
}

func TestStoreHashIsContentAddressed(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	e, _, err := s.Upsert(EntityEmail, "x@y.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	assert.Equal(t, ContentHash(EntityEmail, "x@y.com"), e.Hash)
	assert.NotEqual(t, ContentHash(EntityUsername, "x@y.com"), e.Hash, "type must be part of the hash")
}

func TestStoreRejectsBadInput(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	_, _, err := s.Upsert(EntityEmail, "", Source{IdentityID: "prime"})
	require.ErrorIs(t, err, ErrInvalid)
	_, _, err = s.Upsert(EntityEmail, "x@y.com", Source{})
	require.ErrorIs(t, err, ErrInvalid)
	_, _, err = s.Upsert(EntityType("bogus"), "x", Source{IdentityID: "prime"})
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 0, s.Len())
}

func TestStoreCrossReferences(t *testing.T) {
	s := newTestStore(t, StoreOptions{})

	_, res, err := s.Upsert(EntityEmail, "x@y.com", Source{IdentityID: "prime", Context: "a"})
	require.NoError(t, err)
	assert.False(t, res.CrossReference)
	assert.Empty(t, s.CrossReferences())

	// same identity again does not make a cross-reference
	_, _, err = s.Upsert(EntityEmail, "x@y.com", Source{IdentityID: "prime", Context: "b"})
	require.NoError(t, err)
	assert.Empty(t, s.CrossReferences())

	_, res, err = s.Upsert(EntityEmail, "x@y.com", Source{IdentityID: "ghost", Context: "c"})
	require.NoError(t, err)
	assert.True(t, res.CrossReference)

	crs := s.CrossReferences()
	require.Len(t, crs, 1)
	assert.Equal(t, []string{"ghost", "prime"}, crs[0].IdentityIDs)
	assert.Equal(t, 3, crs[0].TotalOccurrences)
	assert.Equal(t, "x@y.com", crs[0].Value)

	// cached result must be invalidated by deletion
	require.NoError(t, s.Delete(crs[0].EntityHash))
	assert.Empty(t, s.CrossReferences())
}

func TestStoreCrossReferenceOrdering(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	for _, id := range []string{"id-1", "id-2", "id-10"} {
		_, _, err := s.Upsert(EntityDomain, "wide.example", Source{IdentityID: id})
		require.NoError(t, err)
	}
	for _, id := range []string{"id-1", "id-2"} {
		_, _, err := s.Upsert(EntityDomain, "narrow.example", Source{IdentityID: id})
		require.NoError(t, err)
	}

	crs := s.CrossReferences()
	require.Len(t, crs, 2)
	assert.Equal(t, "wide.example", crs[0].Value)
	assert.Equal(t, []string{"id-1", "id-2", "id-10"}, crs[0].IdentityIDs, "natural order")
}

func TestStoreCrossReferencesTrackRepeatObservations(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	_, _, err := s.Upsert(EntityEmail, "alice@example.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityEmail, "alice@example.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)
	require.Len(t, s.CrossReferences(), 1)

	// a repeat from a known source adds no source but still counts
	ent, res, err := s.Upsert(EntityEmail, "alice@example.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	assert.False(t, res.SourceAdded)

	crs := s.CrossReferences()
	require.Len(t, crs, 1)
	assert.Equal(t, 3, crs[0].TotalOccurrences)
	assert.Equal(t, ent.LastSeen, crs[0].LastSeen)
	assert.Equal(t, CrossReferences([]Entity{ent}), crs)
}

func TestStoreEvictsLeastRecentlySeen(t *testing.T) {
	s := newTestStore(t, StoreOptions{MaxEntities: 2})
	src := Source{IdentityID: "prime"}

	a, _, err := s.Upsert(EntityEmail, "a@x.com", src)
	require.NoError(t, err)
	b, _, err := s.Upsert(EntityEmail, "b@x.com", src)
	require.NoError(t, err)

	// observing a again makes b the least recently seen
	_, _, err = s.Upsert(EntityEmail, "a@x.com", src)
	require.NoError(t, err)

	// reads do not count as observations
	_, err = s.Get(b.Hash)
	require.NoError(t, err)

	_, res, err := s.Upsert(EntityEmail, "c@x.com", src)
	require.NoError(t, err)
	assert.Equal(t, []string{b.Hash}, res.Evicted)
	assert.Equal(t, 2, s.Len())

	_, err = s.Get(b.Hash)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(a.Hash)
	require.NoError(t, err)
}

func TestStoreRejectPolicy(t *testing.T) {
	s := newTestStore(t, StoreOptions{MaxEntities: 1, Policy: RejectNew})
	_, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)

	_, _, err = s.Upsert(EntityEmail, "b@x.com", Source{IdentityID: "prime"})
	require.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 1, s.Len())

	// existing entities can still be updated
	_, _, err = s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)
}

func TestStoreListFilters(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	_, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityPhone, "2025551234", Source{IdentityID: "ghost"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityEmail, "b@x.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)

	all := s.List(EntityFilter{})
	require.Len(t, all, 3)
	assert.Equal(t, "b@x.com", all[0].Value, "most recently seen first")

	assert.Len(t, s.List(EntityFilter{Type: EntityEmail}), 2)
	assert.Len(t, s.List(EntityFilter{IdentityID: "ghost"}), 2)
	assert.Len(t, s.List(EntityFilter{Type: EntityEmail, IdentityID: "ghost"}), 1)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	e, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)

	e.Sources[0].IdentityID = "mutated"
	got, err := s.Get(e.Hash)
	require.NoError(t, err)
	assert.Equal(t, "prime", got.Sources[0].IdentityID)
}

func TestStoreAnnotate(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	e, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)

	notes, risk := "seen on a leak site", 80
	got, err := s.Annotate(e.Hash, EntityAnnotation{Tags: []string{"leak", "leak", "burner"}, Notes: &notes, RiskScore: &risk})
	require.NoError(t, err)
	assert.Equal(t, []string{"burner", "leak"}, got.Tags)
	assert.Equal(t, notes, *got.Notes)
	assert.Equal(t, 80, *got.RiskScore)
	assert.Equal(t, 1, got.OccurrenceCount, "annotation is not an observation")

	bad := 101
	_, err = s.Annotate(e.Hash, EntityAnnotation{RiskScore: &bad})
	require.ErrorIs(t, err, ErrInvalid)
	_, err = s.Annotate("missing", EntityAnnotation{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreClearAndRestore(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	e, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)
	require.Len(t, s.CrossReferences(), 1)

	saved := s.List(EntityFilter{})
	assert.Equal(t, 1, s.Clear())
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.CrossReferences())

	s.Restore(saved)
	got, err := s.Get(e.Hash)
	require.NoError(t, err)
	assert.Equal(t, 2, got.OccurrenceCount)
	assert.Len(t, s.CrossReferences(), 1)
}

func TestStoreRestoreReportsDropped(t *testing.T) {
	src := newTestStore(t, StoreOptions{})
	var hashes []string
	for _, v := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		e, _, err := src.Upsert(EntityEmail, v, Source{IdentityID: "prime"})
		require.NoError(t, err)
		hashes = append(hashes, e.Hash)
	}

	s := newTestStore(t, StoreOptions{MaxEntities: 2})
	dropped := s.Restore(src.List(EntityFilter{}))
	assert.Equal(t, []string{hashes[0]}, dropped)
	assert.Equal(t, 2, s.Len())
	_, err := s.Get(hashes[0])
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreEvents(t *testing.T) {
	s := newTestStore(t, StoreOptions{MaxEntities: 1})
	events, cancel := s.Subscribe(10)
	defer cancel()

	_, _, err := s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "prime"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityEmail, "a@x.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)
	_, _, err = s.Upsert(EntityEmail, "b@x.com", Source{IdentityID: "ghost"})
	require.NoError(t, err)

	var types []EventType
	for range 5 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []EventType{
		EventNewEntity,
		EventEntityUpdated, EventCrossReference,
		EventNewEntity, EventEntityEvicted,
	}, types)

	cancel()
	_, ok := <-events
	assert.False(t, ok, "channel closed after unsubscribing")
}

func TestStoreConcurrentUpserts(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Upsert(EntityEmail, "shared@x.com", Source{IdentityID: "identity", Context: string(rune('a' + i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := s.List(EntityFilter{})
	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].OccurrenceCount)
	assert.Len(t, got[0].Sources, 20)
}
