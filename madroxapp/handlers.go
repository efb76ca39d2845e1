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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/madrox-osint/madrox/hivemind"
	"go.uber.org/zap"
)

func (s *server) handleExtractEntities(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*hivemind.ExtractRequest)
	result, err := s.app.ExtractEntities(r.Context(), *payload)
	return jsonResponse(w, result, err)
}

type addEntityPayload struct {
	EntityType string `json:"entity_type"`
	Value      string `json:"value"`
	IdentityID string `json:"identity_id"`
	URL        string `json:"url,omitempty"`
	Context    string `json:"context,omitempty"`
}

func (s *server) handleAddEntity(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*addEntityPayload)
	if payload.IdentityID == "" {
		return Error{
			Err:        hivemind.ErrInvalid,
			HTTPStatus: http.StatusBadRequest,
			Log:        "adding entity",
			Message:    "An identity_id is required.",
		}
	}
	ent, err := s.app.AddEntity(r.Context(), hivemind.EntityType(payload.EntityType), payload.Value, hivemind.Source{
		IdentityID: payload.IdentityID,
		URL:        payload.URL,
		Context:    payload.Context,
	})
	return jsonResponse(w, ent, err)
}

func (s *server) handleGetAllEntities(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*hivemind.EntityFilter)
	ents, err := s.app.Entities(*payload)
	return jsonResponse(w, ents, err)
}

func (s *server) handleGetEntity(w http.ResponseWriter, r *http.Request) error {
	hash := r.Context().Value(ctxKeyPayload).(*string)
	ent, err := s.app.Entity(*hash)
	return jsonResponse(w, ent, err)
}

func (s *server) handleGetEntitySources(w http.ResponseWriter, r *http.Request) error {
	hash := r.Context().Value(ctxKeyPayload).(*string)
	ent, err := s.app.Entity(*hash)
	return jsonResponse(w, ent.Sources, err)
}

func (s *server) handleGetCrossReferences(w http.ResponseWriter, _ *http.Request) error {
	crs, err := s.app.CrossReferences()
	return jsonResponse(w, crs, err)
}

type clearEntitiesPayload struct {
	Confirm bool `json:"confirm"`
}

func (s *server) handleClearEntities(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*clearEntitiesPayload)
	n, err := s.app.ClearEntities(r.Context(), payload.Confirm)
	return jsonResponse(w, map[string]int{"cleared": n}, err)
}

func (s *server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) error {
	hash := r.Context().Value(ctxKeyPayload).(*string)
	return jsonResponse(w, nil, s.app.DeleteEntity(r.Context(), *hash))
}

type annotateEntityPayload struct {
	Hash string `json:"hash"`
	hivemind.EntityAnnotation
}

func (s *server) handleAnnotateEntity(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*annotateEntityPayload)
	ent, err := s.app.AnnotateEntity(r.Context(), payload.Hash, payload.EntityAnnotation)
	return jsonResponse(w, ent, err)
}

func (s *server) handleHivemindStatus(w http.ResponseWriter, _ *http.Request) error {
	status, err := s.app.HivemindStatus()
	return jsonResponse(w, status, err)
}

type phoneIntelPayload struct {
	Number string `json:"number"`
	Region string `json:"region,omitempty"`
}

func (s *server) handlePhoneIntel(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*phoneIntelPayload)
	info, err := s.app.PhoneIntel(payload.Number, payload.Region)
	return jsonResponse(w, info, err)
}

type createInvestigationPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *server) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*createInvestigationPayload)
	inv, err := s.app.CreateInvestigation(r.Context(), payload.Name, payload.Description)
	return jsonResponse(w, inv, err)
}

func (s *server) handleGetAllInvestigations(w http.ResponseWriter, _ *http.Request) error {
	invs, err := s.app.Investigations()
	return jsonResponse(w, invs, err)
}

func (s *server) handleGetInvestigation(w http.ResponseWriter, r *http.Request) error {
	id := r.Context().Value(ctxKeyPayload).(*string)
	inv, err := s.app.Investigation(*id)
	return jsonResponse(w, inv, err)
}

func (s *server) handleDeleteInvestigation(w http.ResponseWriter, r *http.Request) error {
	id := r.Context().Value(ctxKeyPayload).(*string)
	return jsonResponse(w, nil, s.app.DeleteInvestigation(r.Context(), *id))
}

type updateStatusPayload struct {
	InvestigationID string `json:"investigation_id"`
	Status          string `json:"status"`
}

func (s *server) handleUpdateInvestigationStatus(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*updateStatusPayload)
	sum, err := s.app.UpdateInvestigationStatus(r.Context(), payload.InvestigationID, payload.Status)
	return jsonResponse(w, sum, err)
}

type timelineEventPayload struct {
	InvestigationID string `json:"investigation_id"`
	hivemind.NewTimelineEvent
}

func (s *server) handleAddTimelineEvent(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*timelineEventPayload)
	ev, err := s.app.AddTimelineEvent(r.Context(), payload.InvestigationID, payload.NewTimelineEvent)
	return jsonResponse(w, ev, err)
}

type timelineQueryPayload struct {
	InvestigationID string `json:"investigation_id"`
	hivemind.TimelineQuery
}

func (s *server) handleGetTimeline(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*timelineQueryPayload)
	events, err := s.app.Timeline(payload.InvestigationID, payload.TimelineQuery)
	return jsonResponse(w, events, err)
}

type graphNodePayload struct {
	InvestigationID string `json:"investigation_id"`
	hivemind.GraphNode
}

func (s *server) handleAddGraphNode(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*graphNodePayload)
	node, err := s.app.AddGraphNode(r.Context(), payload.InvestigationID, payload.GraphNode)
	return jsonResponse(w, node, err)
}

type graphEdgePayload struct {
	InvestigationID string `json:"investigation_id"`
	hivemind.GraphEdge
}

func (s *server) handleAddGraphEdge(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*graphEdgePayload)
	edge, err := s.app.AddGraphEdge(r.Context(), payload.InvestigationID, payload.GraphEdge)
	return jsonResponse(w, edge, err)
}

func (s *server) handleGetGraph(w http.ResponseWriter, r *http.Request) error {
	id := r.Context().Value(ctxKeyPayload).(*string)
	g, err := s.app.Graph(*id)
	return jsonResponse(w, g, err)
}

type linkEntityPayload struct {
	InvestigationID string `json:"investigation_id"`
	EntityHash      string `json:"entity_hash"`
}

func (s *server) handleLinkEntity(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*linkEntityPayload)
	res, err := s.app.LinkEntity(r.Context(), payload.InvestigationID, payload.EntityHash)
	return jsonResponse(w, res, err)
}

type exportPayload struct {
	InvestigationID string `json:"investigation_id"`
	Format          string `json:"format,omitempty"`
}

const mimeMarkdown = "text/markdown"

// handleExportInvestigation exports in the requested format. If no format
// is given, the Accept header decides; a client that prefers Markdown gets
// the document itself instead of the JSON envelope.
func (s *server) handleExportInvestigation(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*exportPayload)

	format, raw := payload.Format, false
	if accept := r.Header.Get("Accept"); accept != "" {
		acc, err := parseAccept(accept)
		if err != nil {
			return Error{
				Err:        err,
				HTTPStatus: http.StatusBadRequest,
				Log:        "parsing Accept header",
				Message:    "Malformed Accept header.",
			}
		}
		if acc.preference(string(JSON), mimeMarkdown) == mimeMarkdown {
			raw = true
			if format == "" {
				format = hivemind.ExportMarkdown
			}
		}
	}

	exp, err := s.app.ExportInvestigation(payload.InvestigationID, format)
	if err != nil || !raw || exp.Format != hivemind.ExportMarkdown {
		return jsonResponse(w, exp, err)
	}
	w.Header().Set("Content-Type", mimeMarkdown+"; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	_, _ = w.Write([]byte(exp.Data))
	return nil
}

func (s *server) handleGraphLayout(w http.ResponseWriter, r *http.Request) error {
	id := r.Context().Value(ctxKeyPayload).(*string)
	ctx, cancel := context.WithTimeout(r.Context(), maxLayoutTime)
	defer cancel()
	snap, err := s.app.GraphLayout(ctx, *id)
	return jsonResponse(w, snap, layoutErr(err))
}

type graphNodeRefPayload struct {
	InvestigationID string `json:"investigation_id"`
	NodeID          string `json:"node_id"`
}

type pinNodePayload struct {
	graphNodeRefPayload
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}

func (s *server) handlePinGraphNode(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*pinNodePayload)
	ctx, cancel := context.WithTimeout(r.Context(), maxLayoutTime)
	defer cancel()
	snap, err := s.app.PinGraphNode(ctx, payload.InvestigationID, payload.NodeID, payload.X, payload.Y)
	return jsonResponse(w, snap, layoutErr(err))
}

func (s *server) handleUnpinGraphNode(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*graphNodeRefPayload)
	ctx, cancel := context.WithTimeout(r.Context(), maxLayoutTime)
	defer cancel()
	snap, err := s.app.UnpinGraphNode(ctx, payload.InvestigationID, payload.NodeID)
	return jsonResponse(w, snap, layoutErr(err))
}

// maxLayoutTime bounds how long a request may run the layout
// simulation; the positions reached so far are returned.
const maxLayoutTime = 5 * time.Second

// layoutErr drops a timeout error, since an unsettled
// layout is still a usable result.
func layoutErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *server) handleGraphHighlight(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*graphNodeRefPayload)
	h, err := s.app.GraphHighlight(payload.InvestigationID, payload.NodeID)
	return jsonResponse(w, h, err)
}

func (s *server) handlePopulateDemoData(w http.ResponseWriter, r *http.Request) error {
	payload := r.Context().Value(ctxKeyPayload).(*hivemind.DemoOptions)
	res, err := s.app.PopulateDemoData(r.Context(), *payload)
	return jsonResponse(w, res, err)
}

func (s *server) handleBuildInfo(w http.ResponseWriter, _ *http.Request) error {
	return jsonResponse(w, s.app.BuildInfo(), nil)
}

func (server) handleLogs(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgradeWebsocket(w, r)
	if err != nil {
		return err
	}
	defer conn.Close()

	// while the client is connected, broadcast the logs to it
	hivemind.AddLogConn(conn)
	defer hivemind.RemoveLogConn(conn)

	// simply keep the connection open until the client closes it
	for {
		_, _, err = conn.ReadMessage()
		if err != nil {
			break
		}
	}

	return nil
}

// handleHivemindEvents streams entity store events to a websocket
// client until it disconnects.
func (s *server) handleHivemindEvents(w http.ResponseWriter, r *http.Request) error {
	hm, err := getHivemind()
	if err != nil {
		return err
	}
	conn, err := upgradeWebsocket(w, r)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, unsubscribe := hm.Subscribe(eventBuffer)
	defer unsubscribe()

	// the read loop notices when the client goes away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case <-r.Context().Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("hivemind event client went away", zap.Error(err))
				return nil
			}
		}
	}
}

const eventBuffer = 64

func upgradeWebsocket(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, Error{
			Err:        err,
			HTTPStatus: http.StatusBadRequest,
			Log:        "upgrading request to websocket",
			Message:    "This endpoint expects a WebSocket client.",
		}
	}
	return conn, nil
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true }, // we check Origin earlier
}
