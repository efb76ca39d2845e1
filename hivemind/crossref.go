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
	"slices"
	"time"

	"github.com/maruel/natural"
)

// CrossReference is an entity that has been observed by more
// than one research identity.
type CrossReference struct {
	EntityHash       string     `json:"entity_hash"`
	EntityType       EntityType `json:"entity_type"`
	Value            string     `json:"value"`
	IdentityIDs      []string   `json:"identity_ids"`
	TotalOccurrences int        `json:"total_occurrences"`
	FirstSeen        time.Time  `json:"first_seen"`
	LastSeen         time.Time  `json:"last_seen"`
}

func (cr CrossReference) clone() CrossReference {
	cr.IdentityIDs = slices.Clone(cr.IdentityIDs)
	return cr
}

// crossReferenceOf returns the cross-reference for e, or false
// if fewer than two identities have observed it.
func crossReferenceOf(e Entity) (CrossReference, bool) {
	ids := e.IdentityIDs()
	if len(ids) < 2 {
		return CrossReference{}, false
	}
	slices.SortFunc(ids, func(a, b string) int {
		if natural.Less(a, b) {
			return -1
		}
		if natural.Less(b, a) {
			return 1
		}
		return 0
	})
	return CrossReference{
		EntityHash:       e.Hash,
		EntityType:       e.Type,
		Value:            e.Value,
		IdentityIDs:      ids,
		TotalOccurrences: e.OccurrenceCount,
		FirstSeen:        e.FirstSeen,
		LastSeen:         e.LastSeen,
	}, true
}

// CrossReferences derives the cross-references among entities.
// The most widely observed come first, then the most recently seen.
func CrossReferences(entities []Entity) []CrossReference {
	var out []CrossReference
	for _, e := range entities {
		if cr, ok := crossReferenceOf(e); ok {
			out = append(out, cr)
		}
	}
	slices.SortFunc(out, func(a, b CrossReference) int {
		if c := cmp.Compare(len(b.IdentityIDs), len(a.IdentityIDs)); c != 0 {
			return c
		}
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityHash, b.EntityHash)
	})
	return out
}
