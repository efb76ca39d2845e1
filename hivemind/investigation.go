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
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvestigationStatus is the lifecycle state of an investigation.
type InvestigationStatus string

// Investigation statuses.
const (
	StatusActive   InvestigationStatus = "active"
	StatusPaused   InvestigationStatus = "paused"
	StatusClosed   InvestigationStatus = "closed"
	StatusArchived InvestigationStatus = "archived"
)

// ParseInvestigationStatus parses s as a status.
func ParseInvestigationStatus(s string) (InvestigationStatus, error) {
	switch st := InvestigationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusPaused, StatusClosed, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown investigation status '%s'", ErrInvalid, s)
}

// statusTransitions lists, for each status, the statuses it may move to.
var statusTransitions = map[InvestigationStatus][]InvestigationStatus{
	StatusActive:   {StatusPaused, StatusClosed, StatusArchived},
	StatusPaused:   {StatusActive, StatusClosed, StatusArchived},
	StatusClosed:   {StatusArchived},
	StatusArchived: {},
}

// CanTransition reports whether an investigation in status from
// may be moved to status to. Staying in the same status is allowed,
// except that archived is final: no status update applies to it.
func CanTransition(from, to InvestigationStatus) bool {
	if from == StatusArchived {
		return false
	}
	return from == to || slices.Contains(statusTransitions[from], to)
}

// Investigation is a named research case with a timeline
// and a relationship graph.
type Investigation struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Status      InvestigationStatus `json:"status"`
	Timeline    []TimelineEvent     `json:"timeline"`
	Graph       Graph               `json:"graph"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (inv *Investigation) clone() Investigation {
	c := *inv
	c.Timeline = make([]TimelineEvent, len(inv.Timeline))
	for i, ev := range inv.Timeline {
		c.Timeline[i] = ev.clone()
	}
	c.Graph = inv.Graph.clone()
	return c
}

// Summary returns the investigation without its timeline
// and graph but with their sizes.
func (inv *Investigation) Summary() InvestigationSummary {
	return InvestigationSummary{
		ID:          inv.ID,
		Name:        inv.Name,
		Description: inv.Description,
		Status:      inv.Status,
		EventCount:  len(inv.Timeline),
		NodeCount:   len(inv.Graph.Nodes),
		EdgeCount:   len(inv.Graph.Edges),
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
}

// InvestigationSummary is the listing form of an investigation.
type InvestigationSummary struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Status      InvestigationStatus `json:"status"`
	EventCount  int                 `json:"event_count"`
	NodeCount   int                 `json:"node_count"`
	EdgeCount   int                 `json:"edge_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Investigations is the set of all investigations. It is safe for
// concurrent use; changes to different investigations proceed in
// parallel, while each investigation has one writer at a time.
type Investigations struct {
	mu    sync.RWMutex
	byID  map[string]*Investigation
	locks *mapMutex[string]
	now   func() time.Time
	log   *zap.Logger
}

// NewInvestigations returns an empty set of investigations. If
// now is nil, time.Now is used.
func NewInvestigations(now func() time.Time, logger *zap.Logger) *Investigations {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = Log.Named("investigations")
	}
	return &Investigations{
		byID:  make(map[string]*Investigation),
		locks: newMapMutex[string](),
		now:   now,
		log:   logger,
	}
}

func newID(prefix string) string { return prefix + uuid.NewString() }

// with runs fn on the investigation id while holding its lock.
func (invs *Investigations) with(id string, fn func(*Investigation) error) error {
	return invs.locks.with(id, func() error {
		invs.mu.RLock()
		inv, ok := invs.byID[id]
		invs.mu.RUnlock()
		if !ok {
			return fmt.Errorf("investigation %s: %w", id, ErrNotFound)
		}
		return fn(inv)
	})
}

// Create starts a new, active investigation.
func (invs *Investigations) Create(name, description string) (Investigation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Investigation{}, fmt.Errorf("%w: investigation name is required", ErrInvalid)
	}
	now := invs.now()
	inv := &Investigation{
		ID:          newID("inv-"),
		Name:        name,
		Description: description,
		Status:      StatusActive,
		Timeline:    []TimelineEvent{},
		Graph:       Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	invs.mu.Lock()
	invs.byID[inv.ID] = inv
	invs.mu.Unlock()

	invs.log.Info("created investigation", zap.String("id", inv.ID), zap.String("name", name))
	return inv.clone(), nil
}

// Get returns a copy of the investigation.
func (invs *Investigations) Get(id string) (Investigation, error) {
	var out Investigation
	err := invs.with(id, func(inv *Investigation) error {
		out = inv.clone()
		return nil
	})
	return out, err
}

// List summarizes all investigations, most recently updated first.
func (invs *Investigations) List() []InvestigationSummary {
	invs.mu.RLock()
	ids := make([]string, 0, len(invs.byID))
	for id := range invs.byID {
		ids = append(ids, id)
	}
	invs.mu.RUnlock()

	out := make([]InvestigationSummary, 0, len(ids))
	for _, id := range ids {
		_ = invs.with(id, func(inv *Investigation) error {
			out = append(out, inv.Summary())
			return nil
		})
	}
	slices.SortFunc(out, func(a, b InvestigationSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Delete removes an investigation with its timeline and graph.
func (invs *Investigations) Delete(id string) error {
	return invs.locks.with(id, func() error {
		invs.mu.Lock()
		defer invs.mu.Unlock()
		if _, ok := invs.byID[id]; !ok {
			return fmt.Errorf("investigation %s: %w", id, ErrNotFound)
		}
		delete(invs.byID, id)
		invs.log.Info("deleted investigation", zap.String("id", id))
		return nil
	})
}

// UpdateStatus moves the investigation to a new status. A
// transition that is not allowed returns ErrInvalidTransition
// and leaves the status unchanged.
func (invs *Investigations) UpdateStatus(id string, status InvestigationStatus) (InvestigationSummary, error) {
	if _, err := ParseInvestigationStatus(string(status)); err != nil {
		return InvestigationSummary{}, err
	}
	var out InvestigationSummary
	err := invs.with(id, func(inv *Investigation) error {
		if !CanTransition(inv.Status, status) {
			return fmt.Errorf("investigation %s: %s -> %s: %w", id, inv.Status, status, ErrInvalidTransition)
		}
		if inv.Status != status {
			invs.log.Info("investigation status changed",
				zap.String("id", id),
				zap.String("from", string(inv.Status)),
				zap.String("to", string(status)))
			inv.Status = status
			inv.UpdatedAt = invs.now()
		}
		out = inv.Summary()
		return nil
	})
	return out, err
}

// AddTimelineEvent appends an event to the investigation's timeline.
func (invs *Investigations) AddTimelineEvent(id string, in NewTimelineEvent) (TimelineEvent, error) {
	evType, err := ParseTimelineEventType(in.EventType)
	if err != nil {
		return TimelineEvent{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return TimelineEvent{}, fmt.Errorf("%w: event title is required", ErrInvalid)
	}
	if in.IdentityID == "" {
		return TimelineEvent{}, fmt.Errorf("%w: event identity is required", ErrInvalid)
	}

	var out TimelineEvent
	err = invs.with(id, func(inv *Investigation) error {
		now := invs.now()
		ev := TimelineEvent{
			ID:              newID("evt-"),
			InvestigationID: id,
			EventType:       evType,
			Title:           in.Title,
			Description:     in.Description,
			IdentityID:      in.IdentityID,
			URL:             in.URL,
			EntityHash:      in.EntityHash,
			Importance:      clampImportance(in.Importance),
			Metadata:        in.Metadata,
			CreatedAt:       now,
		}.clone()
		inv.Timeline = append(inv.Timeline, ev)
		inv.UpdatedAt = now
		out = ev.clone()
		return nil
	})
	return out, err
}

// Timeline returns the investigation's events selected and
// ordered by q, newest first unless q says otherwise.
func (invs *Investigations) Timeline(id string, q TimelineQuery) ([]TimelineEvent, error) {
	var out []TimelineEvent
	err := invs.with(id, func(inv *Investigation) error {
		out = queryTimeline(inv.Timeline, q)
		return nil
	})
	return out, err
}

// AddGraphNode adds a node to the investigation's graph.
func (invs *Investigations) AddGraphNode(id string, node GraphNode) (GraphNode, error) {
	var out GraphNode
	err := invs.with(id, func(inv *Investigation) error {
		var err error
		out, err = inv.Graph.addNode(node, func() string { return newID("node-") })
		if err != nil {
			return fmt.Errorf("investigation %s: %w", id, err)
		}
		inv.UpdatedAt = invs.now()
		return nil
	})
	return out, err
}

// AddGraphEdge adds an edge between two existing nodes of
// the investigation's graph.
func (invs *Investigations) AddGraphEdge(id string, edge GraphEdge) (GraphEdge, error) {
	var out GraphEdge
	err := invs.with(id, func(inv *Investigation) error {
		var err error
		out, err = inv.Graph.addEdge(edge, func() string { return newID("edge-") })
		if err != nil {
			return fmt.Errorf("investigation %s: %w", id, err)
		}
		inv.UpdatedAt = invs.now()
		return nil
	})
	return out, err
}

// Graph returns a copy of the investigation's graph.
func (invs *Investigations) Graph(id string) (Graph, error) {
	var out Graph
	err := invs.with(id, func(inv *Investigation) error {
		out = inv.Graph.clone()
		return nil
	})
	return out, err
}

// LinkResult lists what LinkEntity added to a graph.
type LinkResult struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Node types and relationships used by LinkEntity.
const (
	NodeTypeEntity   = "entity"
	NodeTypeIdentity = "identity"
	NodeTypePage     = "page"

	RelationshipDiscovered = "discovered"
	RelationshipFoundOn    = "found_on"
)

// LinkEntity adds ent to the investigation's graph along with
// the identities that discovered it and the pages it was found
// on. Nodes and edges already in the graph are left alone, so
// linking the same entity again only adds what is new.
func (invs *Investigations) LinkEntity(id string, ent Entity) (LinkResult, error) {
	if ent.Hash == "" {
		return LinkResult{}, fmt.Errorf("%w: entity has no hash", ErrInvalid)
	}
	result := LinkResult{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	err := invs.with(id, func(inv *Investigation) error {
		g := &inv.Graph
		addNode := func(n GraphNode) {
			if _, ok := g.Node(n.ID); ok {
				return
			}
			if added, err := g.addNode(n, func() string { return newID("node-") }); err == nil {
				result.Nodes = append(result.Nodes, added)
			}
		}
		addEdge := func(e GraphEdge) {
			if g.HasEdge(e.Source, e.Target, e.Relationship) {
				return
			}
			added, err := g.addEdge(e, func() string { return newID("edge-") })
			if err == nil {
				result.Edges = append(result.Edges, added)
			}
		}

		addNode(GraphNode{
			ID:         ent.Hash,
			NodeType:   NodeTypeEntity,
			Label:      ent.Value,
			Value:      ent.Value,
			EntityType: ent.Type,
		})
		for _, src := range ent.Sources {
			identityNode := "identity:" + src.IdentityID
			addNode(GraphNode{ID: identityNode, NodeType: NodeTypeIdentity, Label: src.IdentityID, Value: src.IdentityID})
			addEdge(GraphEdge{
				Source:       identityNode,
				Target:       ent.Hash,
				Relationship: RelationshipDiscovered,
				DiscoveredBy: src.IdentityID,
				Context:      src.Context,
			})
			if src.URL == "" {
				continue
			}
			pageNode := "page:" + src.URL
			addNode(GraphNode{ID: pageNode, NodeType: NodeTypePage, Label: src.URL, Value: src.URL})
			addEdge(GraphEdge{
				Source:       ent.Hash,
				Target:       pageNode,
				Relationship: RelationshipFoundOn,
				DiscoveredBy: src.IdentityID,
				Context:      src.Context,
			})
		}

		if len(result.Nodes) > 0 || len(result.Edges) > 0 {
			inv.UpdatedAt = invs.now()
		}
		return nil
	})
	return result, err
}

// Restore loads previously stored investigations, replacing
// any with the same id.
func (invs *Investigations) Restore(list []Investigation) error {
	invs.mu.Lock()
	defer invs.mu.Unlock()
	var errs []error
	for _, inv := range list {
		if inv.ID == "" {
			errs = append(errs, fmt.Errorf("%w: investigation without id", ErrInvalid))
			continue
		}
		restored := inv.clone()
		invs.byID[inv.ID] = &restored
	}
	return errors.Join(errs...)
}
