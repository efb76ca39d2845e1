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

package madroxapp

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// acceptHeader is a parsed Accept header, ordered from
// most to least preferred.
type acceptHeader []mediaRange

type mediaRange struct {
	mimeType string
	weight   float32
}

// parseAccept parses the value of an Accept header. Media type
// parameters other than q are ignored.
func parseAccept(accept string) (acceptHeader, error) {
	parts := strings.Split(accept, ",")
	ranges := make(acceptHeader, 0, len(parts))
	for _, part := range parts {
		params := strings.Split(part, ";")
		mimeType := strings.ToLower(strings.TrimSpace(params[0]))
		if mimeType == "" {
			continue
		}
		mr := mediaRange{mimeType: mimeType, weight: 1}
		for _, param := range params[1:] {
			key, val, _ := strings.Cut(strings.TrimSpace(param), "=")
			if !strings.EqualFold(strings.TrimSpace(key), "q") {
				continue
			}
			weight, err := strconv.ParseFloat(strings.TrimSpace(val), 32)
			if err != nil || weight < 0 || weight > 1 {
				return nil, fmt.Errorf("bad q value '%s' for %s", val, mimeType)
			}
			mr.weight = float32(weight)
		}
		ranges = append(ranges, mr)
	}
	slices.SortStableFunc(ranges, func(a, b mediaRange) int {
		switch {
		case a.weight > b.weight:
			return -1
		case a.weight < b.weight:
			return 1
		}
		return 0
	})
	return ranges, nil
}

// preference returns which of the offered MIME types the client likes
// best, or "" if it accepts none of them. On a tie, the earlier offer wins.
func (acc acceptHeader) preference(offers ...string) string {
	for _, mr := range acc {
		if mr.weight <= 0 {
			continue
		}
		for _, offer := range offers {
			if mr.matches(offer) {
				return offer
			}
		}
	}
	return ""
}

func (mr mediaRange) matches(candidate string) bool {
	if mr.mimeType == "*/*" {
		return true
	}
	type1, sub1, _ := strings.Cut(mr.mimeType, "/")
	type2, sub2, _ := strings.Cut(strings.TrimSpace(candidate), "/")
	if !strings.EqualFold(type1, type2) {
		return false
	}
	return sub1 == "*" || strings.EqualFold(sub1, sub2)
}
