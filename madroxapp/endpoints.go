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
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/madrox-osint/madrox/hivemind"
)

func (a *App) registerCommands() {
	a.commands = map[string]Endpoint{
		"add-entity": {
			Handler: a.server.handleAddEntity,
			Method:  http.MethodPost,
			Payload: addEntityPayload{},
			Help:    "Records a manually entered entity.",
		},
		"add-graph-edge": {
			Handler: a.server.handleAddGraphEdge,
			Method:  http.MethodPost,
			Payload: graphEdgePayload{},
			Help:    "Adds an edge between two nodes of an investigation's graph.",
		},
		"add-graph-node": {
			Handler: a.server.handleAddGraphNode,
			Method:  http.MethodPost,
			Payload: graphNodePayload{},
			Help:    "Adds a node to an investigation's graph.",
		},
		"add-timeline-event": {
			Handler: a.server.handleAddTimelineEvent,
			Method:  http.MethodPost,
			Payload: timelineEventPayload{},
			Help:    "Records an event on an investigation's timeline.",
		},
		"annotate-entity": {
			Handler: a.server.handleAnnotateEntity,
			Method:  http.MethodPost,
			Payload: annotateEntityPayload{},
			Help:    "Sets tags, notes, or a risk score on an entity.",
		},
		"build-info": {
			Handler: a.server.handleBuildInfo,
			Method:  http.MethodGet,
			Help:    "Displays information about this build.",
		},
		"clear-entities": {
			Handler: a.server.handleClearEntities,
			Method:  http.MethodPost,
			Payload: clearEntitiesPayload{},
			Help:    "Deletes ALL entities. Requires --confirm.",
		},
		"create-investigation": {
			Handler: a.server.handleCreateInvestigation,
			Method:  http.MethodPost,
			Payload: createInvestigationPayload{},
			Help:    "Starts a new investigation.",
		},
		"delete-entity": {
			Handler: a.server.handleDeleteEntity,
			Method:  http.MethodDelete,
			Payload: "",
			Help:    "Deletes one entity by its hash.",
		},
		"delete-investigation": {
			Handler: a.server.handleDeleteInvestigation,
			Method:  http.MethodDelete,
			Payload: "",
			Help:    "Deletes an investigation with its timeline and graph.",
		},
		"export-investigation": {
			Handler: a.server.handleExportInvestigation,
			Method:  http.MethodPost,
			Payload: exportPayload{},
			Help:    "Exports an investigation as JSON or Markdown.",
		},
		"extract-entities-from-text": {
			Handler: a.server.handleExtractEntities,
			Method:  http.MethodPost,
			Payload: hivemind.ExtractRequest{},
			Help:    "Finds entities in text (or an HTML page) seen by a research identity.",
		},
		"get-all-entities": {
			Handler: a.server.handleGetAllEntities,
			Method:  http.MethodPost,
			Payload: hivemind.EntityFilter{},
			Help:    "Lists entities, most recently seen first.",
		},
		"get-all-investigations": {
			Handler: a.server.handleGetAllInvestigations,
			Method:  http.MethodGet,
			Help:    "Lists investigations, most recently updated first.",
		},
		"get-cross-references": {
			Handler: a.server.handleGetCrossReferences,
			Method:  http.MethodGet,
			Help:    "Lists entities seen by more than one identity.",
		},
		"get-entity": {
			Handler: a.server.handleGetEntity,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Returns one entity by its hash.",
		},
		"get-entity-sources": {
			Handler: a.server.handleGetEntitySources,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Returns where an entity was observed.",
		},
		"get-investigation": {
			Handler: a.server.handleGetInvestigation,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Returns an investigation with its timeline and graph.",
		},
		"get-investigation-graph": {
			Handler: a.server.handleGetGraph,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Returns an investigation's graph.",
		},
		"get-investigation-timeline": {
			Handler: a.server.handleGetTimeline,
			Method:  http.MethodPost,
			Payload: timelineQueryPayload{},
			Help:    "Returns an investigation's timeline, newest first.",
		},
		"graph-highlight": {
			Handler: a.server.handleGraphHighlight,
			Method:  http.MethodPost,
			Payload: graphNodeRefPayload{},
			Help:    "Returns a graph node together with its neighbors.",
		},
		"graph-layout": {
			Handler: a.server.handleGraphLayout,
			Method:  http.MethodPost,
			Payload: "",
			Help:    "Lays out an investigation's graph and returns node positions.",
		},
		"hivemind-events": {
			Handler: a.server.handleHivemindEvents,
			Method:  http.MethodGet,
			Help:    "Initiates a WebSocket connection to send entity store events.",
		},
		"hivemind-status": {
			Handler: a.server.handleHivemindStatus,
			Method:  http.MethodGet,
			Help:    "Summarizes the hivemind.",
		},
		"link-entity": {
			Handler: a.server.handleLinkEntity,
			Method:  http.MethodPost,
			Payload: linkEntityPayload{},
			Help:    "Adds an entity with its identities and pages to an investigation's graph.",
		},
		"logs": {
			Handler: a.server.handleLogs,
			Method:  http.MethodGet,
			Help:    "Initiates a WebSocket connection to send logs.",
		},
		"phone-intel": {
			Handler: a.server.handlePhoneIntel,
			Method:  http.MethodPost,
			Payload: phoneIntelPayload{},
			Help:    "Describes a phone number and the ways it may be written.",
		},
		"pin-graph-node": {
			Handler: a.server.handlePinGraphNode,
			Method:  http.MethodPost,
			Payload: pinNodePayload{},
			Help:    "Pins a node of an investigation's graph layout, optionally at a position.",
		},
		"populate-demo-data": {
			Handler: a.server.handlePopulateDemoData,
			Method:  http.MethodPost,
			Payload: hivemind.DemoOptions{},
			Help:    "Fills the hivemind with generated sample data.",
		},
		"unpin-graph-node": {
			Handler: a.server.handleUnpinGraphNode,
			Method:  http.MethodPost,
			Payload: graphNodeRefPayload{},
			Help:    "Releases a pinned node of an investigation's graph layout.",
		},
		"update-investigation-status": {
			Handler: a.server.handleUpdateInvestigationStatus,
			Method:  http.MethodPost,
			Payload: updateStatusPayload{},
			Help:    "Moves an investigation to another status (active, paused, closed, archived).",
		},
	}
}

type Endpoint struct {
	Method      string
	ContentType ContentType
	Payload     any
	Handler     handlerFunc
	Help        string
}

// GetContentType returns the Content-Type of the endpoint
// considering its default of JSON if method is POST, PUT, PATCH, or DELETE.
func (e Endpoint) GetContentType() ContentType {
	if e.ContentType == None && e.Payload != nil &&
		(e.Method == http.MethodPost || e.Method == http.MethodPut ||
			e.Method == http.MethodPatch || e.Method == http.MethodDelete) {
		return JSON
	}
	return e.ContentType
}

type ctxKey string

var ctxKeyPayload ctxKey = "payload"

func (e Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	switch e.GetContentType() {
	case JSON:
		payload := reflect.New(reflect.TypeOf(e.Payload)).Interface()
		if r.ContentLength != 0 && r.Body != nil {
			err := json.NewDecoder(r.Body).Decode(&payload)
			if err != nil {
				return Error{
					Err:        err,
					HTTPStatus: http.StatusBadRequest,
					Log:        "decoding request body as JSON",
					Message:    "Invalid JSON in request body.",
				}
			}
		}
		r = r.WithContext(context.WithValue(r.Context(), ctxKeyPayload, payload))
	case None:
	}

	return e.Handler(w, r)
}

func (a *App) CommandLineHelp() string {
	// alphabetize the commands list
	type commandEndpoint struct {
		command  string
		endpoint Endpoint
	}
	commands := make([]commandEndpoint, 0, len(a.commands))
	for command, endpoint := range a.commands {
		commands = append(commands, commandEndpoint{command, endpoint})
	}
	sort.Slice(commands, func(i, j int) bool {
		return commands[i].command < commands[j].command
	})

	var sb strings.Builder

	sb.WriteString(`Madrox correlates what your research identities see on the web. It extracts
entities (emails, phones, accounts, addresses, ...) from pages, notices when
two identities ran into the same thing, and keeps investigations with a
timeline and a relationship graph.

It consists of a server and a command line client. The CLI and the HTTP JSON
API have symmetric commands (inputs and outputs).

Usage:
  madrox [command] [args...]

Examples:
  $ madrox serve
  $ madrox extract-entities-from-text --text "Contact john@acme.com" --identity-id prime
  $ madrox get-cross-references

Available Commands:`)

	for _, pair := range commands {
		sb.WriteString("\n  ")
		sb.WriteString(pair.command)

		if pair.endpoint.Payload != nil {
			val := reflect.ValueOf(pair.endpoint.Payload)
			kind := val.Kind()

			switch kind { //nolint:exhaustive
			case reflect.Slice:
				sb.WriteString(" <")
				sb.WriteString(val.Type().Elem().String())
				sb.WriteString("...>")
			case reflect.Struct:
				fields := nestedFields(pair.endpoint.Payload)

				for i, field := range fields {
					jsonStructTag := field.Tag.Get("json")
					if jsonStructTag == "" {
						continue
					}
					dataType := field.Type
					argName, omitEmpty, cut := strings.Cut(jsonStructTag, ",")
					if argName == "-" {
						continue
					}
					if argName != "" {
						argName = strings.ReplaceAll(argName, "_", "-")
					}
					if i > 0 && i%3 == 0 {
						sb.WriteString("\n\t\t")
					}
					optional := cut && omitEmpty == "omitempty"
					if optional {
						sb.WriteString(fmt.Sprintf(" [--%s <%s>]", argName, dataType))
					} else {
						sb.WriteString(fmt.Sprintf(" --%s <%s>", argName, dataType))
					}
				}
			default:
				sb.WriteString(" <")
				sb.WriteString(kind.String())
				sb.WriteRune('>')
			}
		}

		sb.WriteString("\n      ")
		sb.WriteString(pair.endpoint.Help)
		sb.WriteRune('\n')
	}

	return sb.String()
}

// nestedFields flattens the struct fields from embedded structs of thing,
// which must be a struct.
func nestedFields(thing any) []reflect.StructField {
	val := reflect.ValueOf(thing)
	typ := reflect.TypeOf(thing)

	var fields []reflect.StructField

	for i := range typ.NumField() {
		typf := typ.Field(i)
		valf := val.Field(i)

		if valf.Kind() == reflect.Struct && typf.Anonymous {
			fields = append(fields, nestedFields(valf.Interface())...)
		} else {
			fields = append(fields, typf)
		}
	}

	return fields
}

// ContentType is an HTTP Content-Type value.
type ContentType string

// Content types that are supported.
const (
	JSON ContentType = "application/json"
	None ContentType = ""
)

const apiBasePath = "/api/"
