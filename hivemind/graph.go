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
	"fmt"
	"maps"
	"math"
	"slices"
)

// DefaultEdgeWeight is the weight of an edge added without one.
const DefaultEdgeWeight = 1.0

// GraphNode is a vertex in an investigation's relationship graph.
type GraphNode struct {
	ID         string         `json:"id"`
	NodeType   string         `json:"node_type"`
	Label      string         `json:"label"`
	Value      string         `json:"value"`
	EntityType EntityType     `json:"entity_type,omitempty"`
	Color      string         `json:"color,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GraphEdge is a directed, labeled relationship between two
// nodes, referenced by id.
type GraphEdge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Relationship string  `json:"relationship"`
	Label        string  `json:"label"`
	Weight       float64 `json:"weight"`
	DiscoveredBy string  `json:"discovered_by"`
	Context      string  `json:"context,omitempty"`
}

// Graph is the set of nodes and edges of one investigation.
// Every edge's endpoints are nodes of the same graph.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`

	idx *graphIndex
}

type edgeKey struct{ source, target, relationship string }

type graphIndex struct {
	nodes     map[string]int
	edges     map[edgeKey]struct{}
	adjacency map[string][]int // node id -> indices into Edges
}

func (g *Graph) index() *graphIndex {
	if g.idx != nil {
		return g.idx
	}
	g.idx = &graphIndex{
		nodes:     make(map[string]int, len(g.Nodes)),
		edges:     make(map[edgeKey]struct{}, len(g.Edges)),
		adjacency: make(map[string][]int),
	}
	for i, n := range g.Nodes {
		g.idx.nodes[n.ID] = i
	}
	for i, e := range g.Edges {
		g.idx.addEdge(i, e)
	}
	return g.idx
}

func (idx *graphIndex) addEdge(i int, e GraphEdge) {
	idx.edges[edgeKey{e.Source, e.Target, e.Relationship}] = struct{}{}
	idx.adjacency[e.Source] = append(idx.adjacency[e.Source], i)
	if e.Target != e.Source {
		idx.adjacency[e.Target] = append(idx.adjacency[e.Target], i)
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (GraphNode, bool) {
	i, ok := g.index().nodes[id]
	if !ok {
		return GraphNode{}, false
	}
	return g.Nodes[i], true
}

// HasEdge reports whether an edge with the given endpoints
// and relationship exists.
func (g *Graph) HasEdge(source, target, relationship string) bool {
	_, ok := g.index().edges[edgeKey{source, target, relationship}]
	return ok
}

func (g *Graph) addNode(n GraphNode, newID func() string) (GraphNode, error) {
	if n.NodeType == "" {
		return GraphNode{}, fmt.Errorf("%w: node type is required", ErrInvalid)
	}
	if n.ID == "" {
		n.ID = newID()
	}
	if n.Label == "" {
		n.Label = n.Value
	}
	idx := g.index()
	if _, exists := idx.nodes[n.ID]; exists {
		return GraphNode{}, fmt.Errorf("node %s: %w", n.ID, ErrDuplicate)
	}
	n.Metadata = maps.Clone(n.Metadata)
	idx.nodes[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n, nil
}

func (g *Graph) addEdge(e GraphEdge, newID func() string) (GraphEdge, error) {
	if e.Source == "" || e.Target == "" {
		return GraphEdge{}, fmt.Errorf("%w: edge needs a source and a target", ErrInvalid)
	}
	if e.Source == e.Target {
		return GraphEdge{}, fmt.Errorf("%w: edge from %s to itself", ErrInvalid, e.Source)
	}
	if e.Relationship == "" {
		return GraphEdge{}, fmt.Errorf("%w: relationship is required", ErrInvalid)
	}
	switch {
	case e.Weight == 0:
		e.Weight = DefaultEdgeWeight
	case e.Weight < 0 || math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0):
		return GraphEdge{}, fmt.Errorf("%w: edge weight %v", ErrInvalid, e.Weight)
	}

	idx := g.index()
	for _, end := range []string{e.Source, e.Target} {
		if _, ok := idx.nodes[end]; !ok {
			return GraphEdge{}, fmt.Errorf("edge endpoint %s: %w", end, ErrNotFound)
		}
	}
	if _, exists := idx.edges[edgeKey{e.Source, e.Target, e.Relationship}]; exists {
		return GraphEdge{}, fmt.Errorf("edge %s -[%s]-> %s: %w", e.Source, e.Relationship, e.Target, ErrDuplicate)
	}

	if e.ID == "" {
		e.ID = newID()
	}
	if e.Label == "" {
		e.Label = e.Relationship
	}
	idx.addEdge(len(g.Edges), e)
	g.Edges = append(g.Edges, e)
	return e, nil
}

// Neighbors returns the ids of the nodes that share an
// edge with id, in the order the edges were added.
func (g *Graph) Neighbors(id string) []string {
	idx := g.index()
	var out []string
	for _, ei := range idx.adjacency[id] {
		e := g.Edges[ei]
		other := e.Target
		if other == id {
			other = e.Source
		}
		if !slices.Contains(out, other) {
			out = append(out, other)
		}
	}
	return out
}

// Highlight is a node and everything directly connected to it.
type Highlight struct {
	NodeID    string   `json:"node_id"`
	Neighbors []string `json:"neighbors"`
	EdgeIDs   []string `json:"edge_ids"`
}

// Highlight returns the neighborhood of the node id.
func (g *Graph) Highlight(id string) (Highlight, error) {
	idx := g.index()
	if _, ok := idx.nodes[id]; !ok {
		return Highlight{}, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	h := Highlight{NodeID: id, Neighbors: g.Neighbors(id)}
	for _, ei := range idx.adjacency[id] {
		h.EdgeIDs = append(h.EdgeIDs, g.Edges[ei].ID)
	}
	return h, nil
}

func (g *Graph) clone() Graph {
	c := Graph{
		Nodes: make([]GraphNode, len(g.Nodes)),
		Edges: slices.Clone(g.Edges),
	}
	for i, n := range g.Nodes {
		n.Metadata = maps.Clone(n.Metadata)
		c.Nodes[i] = n
	}
	if c.Edges == nil {
		c.Edges = []GraphEdge{}
	}
	return c
}
