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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/madrox-osint/madrox/hivemind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHost = "127.0.0.1:12002"

// newTestApp returns an app with an in-memory hivemind
// and its routes registered, but no listener.
func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("MADROX_ADMIN_ADDR", "")
	t.Setenv("MADROX_ORIGIN", "")

	a, err := New(t.Context(), &Config{Repository: InMemory})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.openHivemind(t.Context())
	require.NoError(t, err)
	a.buildMux()
	return a
}

// call sends a request for the given API command through the full
// handler chain and returns the recorded response.
func call(t *testing.T, a *App, method, command, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, "http://"+testHost+apiBasePath+command, nil)
	} else {
		req = httptest.NewRequest(method, "http://"+testHost+apiBasePath+command, strings.NewReader(body))
		req.Header.Set("Content-Type", string(JSON))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestInvestigationCommands(t *testing.T) {
	a := newTestApp(t)

	rec := call(t, a, http.MethodPost, "create-investigation", `{"name":"Op Nightjar","description":"phishing kit"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, serverName, rec.Header().Get("Server"))
	inv := decode[hivemind.Investigation](t, rec)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, hivemind.StatusActive, inv.Status)

	rec = call(t, a, http.MethodPost, "extract-entities-from-text",
		`{"text":"Contact john@acme.com or +1-202-555-1234","identity_id":"prime","investigation_id":"`+inv.ID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[hivemind.ExtractResult](t, rec)
	assert.Equal(t, 2, res.NewCount)

	rec = call(t, a, http.MethodPost, "get-investigation-timeline",
		`{"investigation_id":"`+inv.ID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]hivemind.TimelineEvent](t, rec), 2)

	rec = call(t, a, http.MethodPost, "update-investigation-status",
		`{"investigation_id":"`+inv.ID+`","status":"closed"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// closed investigations can only be archived
	rec = call(t, a, http.MethodPost, "update-investigation-status",
		`{"investigation_id":"`+inv.ID+`","status":"active"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, a, http.MethodPost, "update-investigation-status",
		`{"investigation_id":"`+inv.ID+`","status":"finished"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, a, http.MethodPost, "get-investigation", `"no-such-investigation"`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	apiErr := decode[Error](t, rec)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
	assert.NotEmpty(t, apiErr.ID)

	rec = call(t, a, http.MethodDelete, "delete-investigation", `"`+inv.ID+`"`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = call(t, a, http.MethodGet, "get-all-investigations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]hivemind.InvestigationSummary](t, rec))
}

func TestEntityCommands(t *testing.T) {
	a := newTestApp(t)

	rec := call(t, a, http.MethodPost, "add-entity",
		`{"entity_type":"email","value":"John@Acme.com","identity_id":"prime"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ent := decode[hivemind.Entity](t, rec)
	assert.Equal(t, "john@acme.com", ent.Value)

	rec = call(t, a, http.MethodPost, "add-entity", `{"entity_type":"email","value":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, a, http.MethodPost, "get-entity", `"`+ent.Hash+`"`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, ent.Hash, decode[hivemind.Entity](t, rec).Hash)

	rec = call(t, a, http.MethodPost, "get-entity", `"deadbeef"`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, a, http.MethodPost, "get-all-entities", `{"entity_type":"email"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]hivemind.Entity](t, rec), 1)

	rec = call(t, a, http.MethodPost, "clear-entities", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[Error](t, rec).Recommendations)

	rec = call(t, a, http.MethodPost, "clear-entities", `{"confirm":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"cleared": 1}, decode[map[string]int](t, rec))
}

func TestRequestPolicing(t *testing.T) {
	a := newTestApp(t)

	rec := call(t, a, http.MethodGet, "create-investigation", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = call(t, a, http.MethodGet, "hivemind-status", "", http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, a, http.MethodGet, "hivemind-status", "", http.Header{"Origin": {"http://localhost:12002"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:12002", rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "http://rebound.example:12002"+apiBasePath+"hivemind-status", nil)
	rec = httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, a, http.MethodPost, "create-investigation", `{"name":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportNegotiation(t *testing.T) {
	a := newTestApp(t)

	inv, err := a.CreateInvestigation(context.Background(), "Op Nightjar", "")
	require.NoError(t, err)
	body := `{"investigation_id":"` + inv.ID + `"}`

	rec := call(t, a, http.MethodPost, "export-investigation", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exp := decode[hivemind.InvestigationExport](t, rec)
	assert.Equal(t, hivemind.ExportJSON, exp.Format)

	rec = call(t, a, http.MethodPost, "export-investigation", body, http.Header{"Accept": {"text/markdown"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Op Nightjar\n"), rec.Body.String())

	rec = call(t, a, http.MethodPost, "export-investigation",
		`{"investigation_id":"`+inv.ID+`","format":"markdown"}`, http.Header{"Accept": {"application/json"}})
	require.Equal(t, http.StatusOK, rec.Code)
	exp = decode[hivemind.InvestigationExport](t, rec)
	assert.Equal(t, hivemind.ExportMarkdown, exp.Format)
	assert.True(t, strings.HasPrefix(exp.Data, "# Op Nightjar\n"))

	rec = call(t, a, http.MethodPost, "export-investigation",
		`{"investigation_id":"`+inv.ID+`","format":"pdf"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoHivemind(t *testing.T) {
	shutdownHivemind()
	_, err := getHivemind()
	require.ErrorIs(t, err, errNoHivemind)
	assert.Equal(t, http.StatusServiceUnavailable, httpStatusFromErr(err, http.StatusServiceUnavailable))

	var apiErr Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.HTTPStatus)
}
