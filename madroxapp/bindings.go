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
	"context"
	"runtime"
	"runtime/debug"

	"github.com/madrox-osint/madrox/hivemind"
)

func (a *App) ExtractEntities(ctx context.Context, req hivemind.ExtractRequest) (hivemind.ExtractResult, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.ExtractResult{}, err
	}
	return hm.ExtractEntitiesFromText(ctx, req)
}

func (a *App) AddEntity(ctx context.Context, t hivemind.EntityType, value string, src hivemind.Source) (hivemind.Entity, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Entity{}, err
	}
	ent, _, err := hm.AddEntity(ctx, t, value, src)
	return ent, err
}

func (a *App) Entities(filter hivemind.EntityFilter) ([]hivemind.Entity, error) {
	hm, err := getHivemind()
	if err != nil {
		return nil, err
	}
	return hm.Entities(filter), nil
}

func (a *App) Entity(hash string) (hivemind.Entity, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Entity{}, err
	}
	return hm.Entity(hash)
}

func (a *App) CrossReferences() ([]hivemind.CrossReference, error) {
	hm, err := getHivemind()
	if err != nil {
		return nil, err
	}
	return hm.CrossReferences(), nil
}

func (a *App) ClearEntities(ctx context.Context, confirm bool) (int, error) {
	hm, err := getHivemind()
	if err != nil {
		return 0, err
	}
	return hm.ClearEntities(ctx, confirm)
}

func (a *App) DeleteEntity(ctx context.Context, hash string) error {
	hm, err := getHivemind()
	if err != nil {
		return err
	}
	return hm.DeleteEntity(ctx, hash)
}

func (a *App) AnnotateEntity(ctx context.Context, hash string, ann hivemind.EntityAnnotation) (hivemind.Entity, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Entity{}, err
	}
	return hm.AnnotateEntity(ctx, hash, ann)
}

func (a *App) HivemindStatus() (hivemind.Status, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Status{}, err
	}
	return hm.Status(), nil
}

func (a *App) PhoneIntel(number, region string) (hivemind.PhoneIntel, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.PhoneIntel{}, err
	}
	return hm.AnalyzePhone(number, region)
}

func (a *App) CreateInvestigation(ctx context.Context, name, description string) (hivemind.Investigation, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Investigation{}, err
	}
	return hm.CreateInvestigation(ctx, name, description)
}

func (a *App) Investigations() ([]hivemind.InvestigationSummary, error) {
	hm, err := getHivemind()
	if err != nil {
		return nil, err
	}
	return hm.Investigations(), nil
}

func (a *App) Investigation(id string) (hivemind.Investigation, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Investigation{}, err
	}
	return hm.Investigation(id)
}

func (a *App) DeleteInvestigation(ctx context.Context, id string) error {
	hm, err := getHivemind()
	if err != nil {
		return err
	}
	return hm.DeleteInvestigation(ctx, id)
}

func (a *App) UpdateInvestigationStatus(ctx context.Context, id string, status string) (hivemind.InvestigationSummary, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.InvestigationSummary{}, err
	}
	st, err := hivemind.ParseInvestigationStatus(status)
	if err != nil {
		return hivemind.InvestigationSummary{}, err
	}
	return hm.UpdateInvestigationStatus(ctx, id, st)
}

func (a *App) AddTimelineEvent(ctx context.Context, id string, ev hivemind.NewTimelineEvent) (hivemind.TimelineEvent, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.TimelineEvent{}, err
	}
	return hm.AddTimelineEvent(ctx, id, ev)
}

func (a *App) Timeline(id string, q hivemind.TimelineQuery) ([]hivemind.TimelineEvent, error) {
	hm, err := getHivemind()
	if err != nil {
		return nil, err
	}
	return hm.Timeline(id, q)
}

func (a *App) AddGraphNode(ctx context.Context, id string, node hivemind.GraphNode) (hivemind.GraphNode, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.GraphNode{}, err
	}
	return hm.AddGraphNode(ctx, id, node)
}

func (a *App) AddGraphEdge(ctx context.Context, id string, edge hivemind.GraphEdge) (hivemind.GraphEdge, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.GraphEdge{}, err
	}
	return hm.AddGraphEdge(ctx, id, edge)
}

func (a *App) Graph(id string) (hivemind.Graph, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Graph{}, err
	}
	return hm.Graph(id)
}

func (a *App) LinkEntity(ctx context.Context, id, entityHash string) (hivemind.LinkResult, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.LinkResult{}, err
	}
	return hm.LinkEntity(ctx, id, entityHash)
}

func (a *App) ExportInvestigation(id, format string) (hivemind.InvestigationExport, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.InvestigationExport{}, err
	}
	return hm.ExportInvestigation(id, format)
}

func (a *App) GraphLayout(ctx context.Context, id string) (hivemind.LayoutSnapshot, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.LayoutSnapshot{}, err
	}
	return hm.GraphLayout(ctx, id)
}

func (a *App) PinGraphNode(ctx context.Context, id, nodeID string, x, y *float64) (hivemind.LayoutSnapshot, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.LayoutSnapshot{}, err
	}
	return hm.PinGraphNode(ctx, id, nodeID, x, y)
}

func (a *App) UnpinGraphNode(ctx context.Context, id, nodeID string) (hivemind.LayoutSnapshot, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.LayoutSnapshot{}, err
	}
	return hm.UnpinGraphNode(ctx, id, nodeID)
}

func (a *App) GraphHighlight(id, nodeID string) (hivemind.Highlight, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.Highlight{}, err
	}
	return hm.GraphHighlight(id, nodeID)
}

func (a *App) PopulateDemoData(ctx context.Context, opts hivemind.DemoOptions) (hivemind.DemoResult, error) {
	hm, err := getHivemind()
	if err != nil {
		return hivemind.DemoResult{}, err
	}
	return hm.PopulateDemoData(ctx, opts)
}

type BuildInfo struct {
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
	GoVersion string `json:"go_version"`
	Version   string `json:"version,omitempty"`
}

func (a *App) BuildInfo() BuildInfo {
	info := BuildInfo{
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.Version = bi.Main.Version
	}
	return info
}
