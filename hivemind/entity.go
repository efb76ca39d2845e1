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
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"github.com/zeebo/blake3"
)

// EntityType is the category of a piece of extracted intelligence.
type EntityType string

// Entity types. The set is closed.
const (
	EntityEmail           EntityType = "email"
	EntityPhone           EntityType = "phone"
	EntityIPv4            EntityType = "ip_v4"
	EntityIPv6            EntityType = "ip_v6"
	EntityDomain          EntityType = "domain"
	EntityURL             EntityType = "url"
	EntityUsername        EntityType = "username"
	EntityHashtag         EntityType = "hashtag"
	EntityBitcoinAddress  EntityType = "bitcoin_address"
	EntityEthereumAddress EntityType = "ethereum_address"
	EntityCreditCard      EntityType = "credit_card"
	EntitySSN             EntityType = "ssn"
	EntityDate            EntityType = "date"
	EntityCoordinate      EntityType = "coordinate"
	EntityMACAddress      EntityType = "mac_address"
	EntityUUID            EntityType = "uuid"
	EntityHash            EntityType = "hash"
	EntityName            EntityType = "name"
	EntitySocialURL       EntityType = "social_url"
)

// EntityTypes lists every entity type in a stable order.
var EntityTypes = []EntityType{
	EntityEmail, EntityPhone, EntityIPv4, EntityIPv6, EntityDomain, EntityURL,
	EntityUsername, EntityHashtag, EntityBitcoinAddress, EntityEthereumAddress,
	EntityCreditCard, EntitySSN, EntityDate, EntityCoordinate, EntityMACAddress,
	EntityUUID, EntityHash, EntityName, EntitySocialURL,
}

// ParseEntityType returns the EntityType named by s.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if slices.Contains(EntityTypes, t) {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown entity type '%s'", ErrInvalid, s)
}

// Source records one place an entity was observed.
type Source struct {
	IdentityID string    `json:"identity_id"`
	URL        string    `json:"url,omitempty"`
	Context    string    `json:"context,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s Source) sameAs(other Source) bool {
	return s.IdentityID == other.IdentityID && s.URL == other.URL && s.Context == other.Context
}

// Entity is a unique (type, canonical value) pair along with
// everywhere it has been seen.
type Entity struct {
	Hash            string     `json:"hash"`
	Type            EntityType `json:"entity_type"`
	Value           string     `json:"value"`
	Sources         []Source   `json:"sources"`
	FirstSeen       time.Time  `json:"first_seen"`
	LastSeen        time.Time  `json:"last_seen"`
	OccurrenceCount int        `json:"occurrence_count"`

	// set only by explicit user action
	Tags      []string `json:"tags,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	RiskScore *int     `json:"risk_score,omitempty"`
}

// IdentityIDs returns the distinct identities that observed the entity,
// in order of first observation.
func (e Entity) IdentityIDs() []string {
	var ids []string
	for _, s := range e.Sources {
		if !slices.Contains(ids, s.IdentityID) {
			ids = append(ids, s.IdentityID)
		}
	}
	return ids
}

func (e Entity) clone() Entity {
	e.Sources = slices.Clone(e.Sources)
	e.Tags = slices.Clone(e.Tags)
	if e.Notes != nil {
		notes := *e.Notes
		e.Notes = &notes
	}
	if e.RiskScore != nil {
		risk := *e.RiskScore
		e.RiskScore = &risk
	}
	return e
}

// EntityAnnotation is a set of user-supplied changes to an entity.
// Nil fields are left alone.
type EntityAnnotation struct {
	Tags      []string `json:"tags,omitempty"`
	Notes     *string  `json:"notes,omitempty"`
	RiskScore *int     `json:"risk_score,omitempty"`
}

// ContentHash returns the content address of the canonical value
// of type t. Equal (type, value) pairs always produce equal hashes.
func ContentHash(t EntityType, canonicalValue string) string {
	h := blake3.New()
	_, _ = h.WriteString(string(t))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(canonicalValue)
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
