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
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestInvestigations(t *testing.T) *Investigations {
	t.Helper()
	return NewInvestigations(fakeClock(), zaptest.NewLogger(t))
}

func TestCanTransition(t *testing.T) {
	for i, tc := range []struct {
		from, to InvestigationStatus
		expect   bool
	}{
		{StatusActive, StatusPaused, true},
		{StatusPaused, StatusActive, true},
		{StatusActive, StatusClosed, true},
		{StatusPaused, StatusClosed, true},
		{StatusActive, StatusArchived, true},
		{StatusPaused, StatusArchived, true},
		{StatusClosed, StatusArchived, true},
		{StatusClosed, StatusActive, false},
		{StatusClosed, StatusPaused, false},
		{StatusArchived, StatusActive, false},
		{StatusArchived, StatusPaused, false},
		{StatusArchived, StatusClosed, false},
		{StatusActive, StatusActive, true},
		{StatusArchived, StatusArchived, false},
		{StatusClosed, StatusClosed, true},
	} {
		if actual := CanTransition(tc.from, tc.to); actual != tc.expect {
			t.Errorf("Test %d: %s -> %s: expected %t, got %t", i, tc.from, tc.to, tc.expect, actual)
		}
	}
}

func TestInvestigationLifecycle(t *testing.T) {
	invs := newTestInvestigations(t)

	_, err := invs.Create("  ", "")
	require.ErrorIs(t, err, ErrInvalid)

	inv, err := invs.Create("Case 1", "desc")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.ID, "inv-"))
	assert.Equal(t, StatusActive, inv.Status)

	sum, err := invs.UpdateStatus(inv.ID, StatusClosed)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, sum.Status)

	_, err = invs.UpdateStatus(inv.ID, StatusActive)
	require.ErrorIs(t, err, ErrInvalidTransition)
	got, err := invs.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, got.Status, "rejected transition leaves status unchanged")

	_, err = invs.UpdateStatus(inv.ID, InvestigationStatus("frozen"))
	require.ErrorIs(t, err, ErrInvalid)

	_, err = invs.UpdateStatus(inv.ID, StatusArchived)
	require.NoError(t, err)
	before, err := invs.Get(inv.ID)
	require.NoError(t, err)
	_, err = invs.UpdateStatus(inv.ID, StatusArchived)
	require.ErrorIs(t, err, ErrInvalidTransition, "archived investigations accept no status update")
	after, err := invs.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	require.NoError(t, invs.Delete(inv.ID))
	_, err = invs.Get(inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, invs.Delete(inv.ID), ErrNotFound)
}

func TestTimelineOrdering(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case", "")
	require.NoError(t, err)

	for _, title := range []string{"t1", "t2", "t3"} {
		_, err := invs.AddTimelineEvent(inv.ID, NewTimelineEvent{EventType: "note", Title: title, IdentityID: "prime"})
		require.NoError(t, err)
	}

	events, err := invs.Timeline(inv.ID, TimelineQuery{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"t3", "t2", "t1"}, titles(events))

	events, err = invs.Timeline(inv.ID, TimelineQuery{Ascending: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, titles(events))

	// reading never changes stored order
	got, err := invs.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, titles(got.Timeline))
}

func titles(events []TimelineEvent) []string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.Title)
	}
	return out
}

func TestAddTimelineEvent(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case", "")
	require.NoError(t, err)

	ev, err := invs.AddTimelineEvent(inv.ID, NewTimelineEvent{EventType: "page_visit", Title: "Visit", IdentityID: "prime"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ev.ID, "evt-"))
	assert.Equal(t, TimelinePageVisit, ev.EventType)
	assert.Equal(t, 1, ev.Importance)

	ev, err = invs.AddTimelineEvent(inv.ID, NewTimelineEvent{EventType: "made_up", Title: "X", IdentityID: "prime", Importance: 9})
	require.NoError(t, err)
	assert.Equal(t, TimelineCustom, ev.EventType)
	assert.Equal(t, 5, ev.Importance)

	for i, bad := range []NewTimelineEvent{
		{EventType: "", Title: "X", IdentityID: "prime"},
		{EventType: "note", Title: "", IdentityID: "prime"},
		{EventType: "note", Title: "X", IdentityID: ""},
	} {
		_, err := invs.AddTimelineEvent(inv.ID, bad)
		assert.ErrorIs(t, err, ErrInvalid, "case %d", i)
	}

	_, err = invs.AddTimelineEvent("inv-missing", NewTimelineEvent{EventType: "note", Title: "X", IdentityID: "prime"})
	require.ErrorIs(t, err, ErrNotFound)

	filtered, err := invs.Timeline(inv.ID, TimelineQuery{EventType: TimelineCustom})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	got, err := invs.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Summary().EventCount)
}

func TestGraphReferentialIntegrity(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case", "")
	require.NoError(t, err)

	_, err = invs.AddGraphNode(inv.ID, GraphNode{ID: "a", NodeType: "person", Label: "A"})
	require.NoError(t, err)
	_, err = invs.AddGraphNode(inv.ID, GraphNode{ID: "a", NodeType: "person"})
	require.ErrorIs(t, err, ErrDuplicate)
	_, err = invs.AddGraphNode(inv.ID, GraphNode{ID: "b", NodeType: "account", Value: "@b"})
	require.NoError(t, err)

	_, err = invs.AddGraphEdge(inv.ID, GraphEdge{Source: "a", Target: "missing", Relationship: "owns"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = invs.AddGraphEdge(inv.ID, GraphEdge{Source: "a", Target: "b", Relationship: "owns", Weight: -1})
	require.ErrorIs(t, err, ErrInvalid)

	edge, err := invs.AddGraphEdge(inv.ID, GraphEdge{Source: "a", Target: "b", Relationship: "owns"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(edge.ID, "edge-"))
	assert.InDelta(t, DefaultEdgeWeight, edge.Weight, 0)
	assert.Equal(t, "owns", edge.Label)

	_, err = invs.AddGraphEdge(inv.ID, GraphEdge{Source: "a", Target: "b", Relationship: "owns"})
	require.ErrorIs(t, err, ErrDuplicate)

	// a different relationship between the same nodes is allowed
	_, err = invs.AddGraphEdge(inv.ID, GraphEdge{Source: "a", Target: "b", Relationship: "follows", Weight: 2.5})
	require.NoError(t, err)

	g, err := invs.Graph(inv.ID)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Edges, 2)
	for _, e := range g.Edges {
		_, ok := g.Node(e.Source)
		assert.True(t, ok)
		_, ok = g.Node(e.Target)
		assert.True(t, ok)
	}

	got, err := invs.Get(inv.ID)
	require.NoError(t, err)
	sum := got.Summary()
	assert.Equal(t, 2, sum.NodeCount)
	assert.Equal(t, 2, sum.EdgeCount)

	node, ok := g.Node("b")
	require.True(t, ok)
	assert.Equal(t, "@b", node.Label, "label defaults to value")

	h, err := g.Highlight("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, h.Neighbors)
	assert.Len(t, h.EdgeIDs, 2)
	_, err = g.Highlight("zzz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLinkEntityIsIdempotent(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case", "")
	require.NoError(t, err)

	ent := Entity{
		Hash:  ContentHash(EntityEmail, "x@y.com"),
		Type:  EntityEmail,
		Value: "x@y.com",
		Sources: []Source{
			{IdentityID: "prime", URL: "https://a.example"},
			{IdentityID: "ghost", URL: "https://a.example"},
		},
	}

	res, err := invs.LinkEntity(inv.ID, ent)
	require.NoError(t, err)
	assert.Len(t, res.Nodes, 4) // entity, two identities, one page
	assert.Len(t, res.Edges, 3) // two discovered, one found_on

	res, err = invs.LinkEntity(inv.ID, ent)
	require.NoError(t, err)
	assert.Empty(t, res.Nodes)
	assert.Empty(t, res.Edges)

	g, err := invs.Graph(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"identity:prime", "page:https://a.example", "identity:ghost"}, g.Neighbors(ent.Hash))
}

func TestExportInvestigation(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case | One", "about it")
	require.NoError(t, err)
	_, err = invs.AddTimelineEvent(inv.ID, NewTimelineEvent{EventType: "note", Title: "first", IdentityID: "prime"})
	require.NoError(t, err)

	exp, err := invs.Export(inv.ID, "")
	require.NoError(t, err)
	assert.Equal(t, ExportJSON, exp.Format)
	var decoded Investigation
	require.NoError(t, json.Unmarshal([]byte(exp.Data), &decoded))
	assert.Equal(t, inv.ID, decoded.ID)
	assert.Len(t, decoded.Timeline, 1)

	exp, err = invs.Export(inv.ID, ExportMarkdown)
	require.NoError(t, err)
	assert.Contains(t, exp.Data, "# Case | One")
	assert.Contains(t, exp.Data, "**first**")
	assert.Contains(t, exp.Data, "## Timeline (1 events)")

	_, err = invs.Export(inv.ID, "pdf")
	require.ErrorIs(t, err, ErrInvalid)
	_, err = invs.Export("inv-missing", ExportJSON)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExportMarkdownLayout(t *testing.T) {
	invs := newTestInvestigations(t)
	inv, err := invs.Create("Case", "about it")
	require.NoError(t, err)
	_, err = invs.AddTimelineEvent(inv.ID, NewTimelineEvent{EventType: "note", Title: "older", IdentityID: "prime"})
	require.NoError(t, err)
	_, err = invs.AddTimelineEvent(inv.ID, NewTimelineEvent{
		EventType:   "note",
		Title:       "newer | piped",
		Description: "line one\nline two",
		IdentityID:  "ghost",
		URL:         "https://a.example",
	})
	require.NoError(t, err)

	exp, err := invs.Export(inv.ID, ExportMarkdown)
	require.NoError(t, err)
	md := exp.Data
	assert.True(t, strings.HasPrefix(md, "# Case\n\nabout it\n\n- **ID:** "+inv.ID+"\n"), md)
	assert.Contains(t, md, "- **Exported:** "+exp.ExportedAt.UTC().Format(time.RFC3339)+"\n")
	assert.Contains(t, md, "## Timeline (2 events)\n\n- ")
	assert.Contains(t, md, "`note` **newer \\| piped** (ghost, importance ")
	assert.Contains(t, md, " <https://a.example>\n  line one line two\n")
	assert.Less(t, strings.Index(md, "newer"), strings.Index(md, "older"), "newest first")
	assert.Contains(t, md, "\n\n## Graph (")
}

func TestListInvestigations(t *testing.T) {
	invs := newTestInvestigations(t)
	a, err := invs.Create("A", "")
	require.NoError(t, err)
	b, err := invs.Create("B", "")
	require.NoError(t, err)

	list := invs.List()
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "most recently updated first")

	_, err = invs.AddTimelineEvent(a.ID, NewTimelineEvent{EventType: "note", Title: "x", IdentityID: "prime"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, invs.List()[0].ID)
}
