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
	"maps"
	"slices"
	"strings"
	"time"
)

// TimelineEventType categorizes a timeline event.
type TimelineEventType string

// Timeline event types.
const (
	TimelinePageVisit         TimelineEventType = "page_visit"
	TimelineEntityDiscovered  TimelineEventType = "entity_discovered"
	TimelineIdentitySwitch    TimelineEventType = "identity_switch"
	TimelineSearchQuery       TimelineEventType = "search_query"
	TimelineScreenshot        TimelineEventType = "screenshot"
	TimelineNote              TimelineEventType = "note"
	TimelineBookmark          TimelineEventType = "bookmark"
	TimelineExport            TimelineEventType = "export"
	TimelineAlert             TimelineEventType = "alert"
	TimelineConnectionFound   TimelineEventType = "connection_found"
	TimelineEvidenceCollected TimelineEventType = "evidence_collected"
	TimelineHypothesis        TimelineEventType = "hypothesis"
	TimelineCustom            TimelineEventType = "custom"
)

var timelineEventTypes = []TimelineEventType{
	TimelinePageVisit, TimelineEntityDiscovered, TimelineIdentitySwitch, TimelineSearchQuery,
	TimelineScreenshot, TimelineNote, TimelineBookmark, TimelineExport, TimelineAlert,
	TimelineConnectionFound, TimelineEvidenceCollected, TimelineHypothesis, TimelineCustom,
}

// ParseTimelineEventType maps s to a timeline event type. Names
// that are not one of the known types become TimelineCustom.
func ParseTimelineEventType(s string) (TimelineEventType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: event type is required", ErrInvalid)
	}
	t := TimelineEventType(strings.ToLower(s))
	if slices.Contains(timelineEventTypes, t) {
		return t, nil
	}
	return TimelineCustom, nil
}

// Importance bounds for timeline events.
const (
	MinImportance = 1
	MaxImportance = 5
)

// TimelineEvent is one entry in an investigation's timeline.
type TimelineEvent struct {
	ID              string            `json:"id"`
	InvestigationID string            `json:"investigation_id"`
	EventType       TimelineEventType `json:"event_type"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	IdentityID      string            `json:"identity_id"`
	URL             string            `json:"url,omitempty"`
	EntityHash      string            `json:"entity_hash,omitempty"`
	Importance      int               `json:"importance"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (ev TimelineEvent) clone() TimelineEvent {
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}

// NewTimelineEvent is the input for adding a timeline event.
type NewTimelineEvent struct {
	EventType   string         `json:"event_type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	IdentityID  string         `json:"identity_id"`
	URL         string         `json:"url,omitempty"`
	EntityHash  string         `json:"entity_hash,omitempty"`
	Importance  int            `json:"importance,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// clampImportance returns imp limited to the allowed range; 0
// means unspecified and becomes the minimum.
func clampImportance(imp int) int {
	return min(max(imp, MinImportance), MaxImportance)
}

// TimelineQuery selects and orders timeline events.
type TimelineQuery struct {
	EventType TimelineEventType `json:"event_type,omitempty"`
	Ascending bool              `json:"ascending,omitempty"`
	Limit     int               `json:"limit,omitempty"`
}

// queryTimeline returns a filtered, sorted copy of events, which
// must be in insertion order. Events created at the same instant
// keep their relative insertion order (reversed when descending).
func queryTimeline(events []TimelineEvent, q TimelineQuery) []TimelineEvent {
	type indexed struct {
		seq int
		ev  TimelineEvent
	}
	var sel []indexed
	for i, ev := range events {
		if q.EventType != "" && ev.EventType != q.EventType {
			continue
		}
		sel = append(sel, indexed{i, ev})
	}

	slices.SortFunc(sel, func(a, b indexed) int {
		c := a.ev.CreatedAt.Compare(b.ev.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.seq, b.seq)
		}
		if q.Ascending {
			return c
		}
		return -c
	})

	if q.Limit > 0 && len(sel) > q.Limit {
		sel = sel[:q.Limit]
	}
	out := make([]TimelineEvent, len(sel))
	for i, s := range sel {
		out[i] = s.ev.clone()
	}
	return out
}
