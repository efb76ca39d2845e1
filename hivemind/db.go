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
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 driver
	"go.uber.org/zap"
)

// DBFilename is the name of the database file within a repository.
const DBFilename = "madrox.db"

//go:embed schema.sql
var createDB string

func openAndProvisionDB(ctx context.Context, repoDir string) (*sql.DB, error) {
	db, err := openDB(ctx, repoDir)
	if err != nil {
		return nil, err
	}
	if err = provisionDB(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openDB(ctx context.Context, repoDir string) (*sql.DB, error) {
	dbPath := filepath.Join(repoDir, DBFilename)

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var version string
	err = db.QueryRowContext(ctx, "SELECT sqlite_version() AS version").Scan(&version)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("querying sqlite version: %w", err)
	}
	Log.Info("using sqlite", zap.String("version", version), zap.String("path", dbPath))

	return db, nil
}

func provisionDB(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createDB)
	if err != nil {
		return fmt.Errorf("setting up database: %w", err)
	}

	// a persistent identifier for this repo, and the schema version
	_, err = db.ExecContext(ctx, `INSERT OR IGNORE INTO repo (key, value) VALUES (?, ?), (?, ?)`,
		"id", uuid.New().String(),
		"version", 1,
	)
	if err != nil {
		return fmt.Errorf("persisting repo UUID and version: %w", err)
	}

	return nil
}

func loadRepoID(ctx context.Context, db *sql.DB) (uuid.UUID, error) {
	var id string
	err := db.QueryRowContext(ctx, `SELECT value FROM repo WHERE key='id' LIMIT 1`).Scan(&id)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("selecting repo UUID: %w", err)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("malformed repo UUID %q: %w", id, err)
	}
	return u, nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func saveEntity(ctx context.Context, tx *sql.Tx, e Entity) error {
	tags, err := marshalNullable(e.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (hash, type, value, first_seen, last_seen, occurrence_count, tags, notes, risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			last_seen=excluded.last_seen,
			occurrence_count=excluded.occurrence_count,
			tags=excluded.tags,
			notes=excluded.notes,
			risk_score=excluded.risk_score`,
		e.Hash, string(e.Type), e.Value, timeToDB(e.FirstSeen), timeToDB(e.LastSeen),
		e.OccurrenceCount, tags, e.Notes, e.RiskScore)
	if err != nil {
		return fmt.Errorf("storing entity %s: %w", e.Hash, err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM entity_sources WHERE entity_hash=?`, e.Hash)
	if err != nil {
		return fmt.Errorf("clearing sources of entity %s: %w", e.Hash, err)
	}
	for _, src := range e.Sources {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entity_sources (entity_hash, identity_id, url, context, timestamp) VALUES (?, ?, ?, ?, ?)`,
			e.Hash, src.IdentityID, nullString(src.URL), nullString(src.Context), timeToDB(src.Timestamp))
		if err != nil {
			return fmt.Errorf("storing source of entity %s: %w", e.Hash, err)
		}
	}
	return nil
}

func deleteEntities(ctx context.Context, tx *sql.Tx, hashes []string) error {
	for _, hash := range hashes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE hash=?`, hash); err != nil {
			return fmt.Errorf("deleting entity %s: %w", hash, err)
		}
	}
	return nil
}

func loadEntities(ctx context.Context, db *sql.DB) ([]Entity, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT hash, type, value, first_seen, last_seen, occurrence_count, tags, notes, risk_score
		FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var ents []Entity
	byHash := make(map[string]int)
	for rows.Next() {
		var e Entity
		var typ string
		var firstSeen, lastSeen int64
		var tags, notes sql.NullString
		var risk sql.NullInt64
		err := rows.Scan(&e.Hash, &typ, &e.Value, &firstSeen, &lastSeen, &e.OccurrenceCount, &tags, &notes, &risk)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		e.Type = EntityType(typ)
		e.FirstSeen, e.LastSeen = timeFromDB(firstSeen), timeFromDB(lastSeen)
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
				return nil, fmt.Errorf("decoding tags of entity %s: %w", e.Hash, err)
			}
		}
		if notes.Valid {
			e.Notes = &notes.String
		}
		if risk.Valid {
			r := int(risk.Int64)
			e.RiskScore = &r
		}
		byHash[e.Hash] = len(ents)
		ents = append(ents, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}

	srcRows, err := db.QueryContext(ctx, `SELECT entity_hash, identity_id, url, context, timestamp FROM entity_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying entity sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var hash string
		var src Source
		var url, ctxText sql.NullString
		var ts int64
		if err := srcRows.Scan(&hash, &src.IdentityID, &url, &ctxText, &ts); err != nil {
			return nil, fmt.Errorf("scanning entity source: %w", err)
		}
		src.URL, src.Context, src.Timestamp = url.String, ctxText.String, timeFromDB(ts)
		if i, ok := byHash[hash]; ok {
			ents[i].Sources = append(ents[i].Sources, src)
		}
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity source rows: %w", err)
	}

	return ents, nil
}

// saveInvestigation writes the investigation row and any timeline
// events, nodes, and edges not already stored. Events, nodes, and
// edges never change once added.
func saveInvestigation(ctx context.Context, tx *sql.Tx, inv Investigation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO investigations (id, name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name=excluded.name,
			description=excluded.description,
			status=excluded.status,
			updated_at=excluded.updated_at`,
		inv.ID, inv.Name, inv.Description, string(inv.Status), timeToDB(inv.CreatedAt), timeToDB(inv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("storing investigation %s: %w", inv.ID, err)
	}

	for _, ev := range inv.Timeline {
		meta, err := marshalNullable(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata of event %s: %w", ev.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO timeline_events
				(id, investigation_id, event_type, title, description, identity_id, url, entity_hash, importance, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, inv.ID, string(ev.EventType), ev.Title, ev.Description, ev.IdentityID,
			nullString(ev.URL), nullString(ev.EntityHash), ev.Importance, meta, timeToDB(ev.CreatedAt))
		if err != nil {
			return fmt.Errorf("storing timeline event %s: %w", ev.ID, err)
		}
	}

	for _, n := range inv.Graph.Nodes {
		meta, err := marshalNullable(n.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata of node %s: %w", n.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO graph_nodes (investigation_id, id, node_type, label, value, entity_type, color, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, n.ID, n.NodeType, n.Label, n.Value, nullString(string(n.EntityType)), nullString(n.Color), meta)
		if err != nil {
			return fmt.Errorf("storing graph node %s: %w", n.ID, err)
		}
	}

	for _, e := range inv.Graph.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO graph_edges
				(investigation_id, id, source, target, relationship, label, weight, discovered_by, context)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, e.ID, e.Source, e.Target, e.Relationship, e.Label, e.Weight, e.DiscoveredBy, nullString(e.Context))
		if err != nil {
			return fmt.Errorf("storing graph edge %s: %w", e.ID, err)
		}
	}

	return nil
}

func deleteInvestigation(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM investigations WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("deleting investigation %s: %w", id, err)
	}
	return nil
}

func loadInvestigations(ctx context.Context, db *sql.DB) ([]Investigation, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, description, status, created_at, updated_at FROM investigations`)
	if err != nil {
		return nil, fmt.Errorf("querying investigations: %w", err)
	}
	defer rows.Close()

	var invs []Investigation
	byID := make(map[string]int)
	for rows.Next() {
		inv := Investigation{Timeline: []TimelineEvent{}, Graph: Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}}
		var desc sql.NullString
		var status string
		var created, updated int64
		if err := rows.Scan(&inv.ID, &inv.Name, &desc, &status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning investigation: %w", err)
		}
		inv.Description, inv.Status = desc.String, InvestigationStatus(status)
		inv.CreatedAt, inv.UpdatedAt = timeFromDB(created), timeFromDB(updated)
		byID[inv.ID] = len(invs)
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating investigation rows: %w", err)
	}

	if err := loadTimelineEvents(ctx, db, invs, byID); err != nil {
		return nil, err
	}
	if err := loadGraphs(ctx, db, invs, byID); err != nil {
		return nil, err
	}
	return invs, nil
}

func loadTimelineEvents(ctx context.Context, db *sql.DB, invs []Investigation, byID map[string]int) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, investigation_id, event_type, title, description, identity_id, url, entity_hash, importance, metadata, created_at
		FROM timeline_events ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying timeline events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev TimelineEvent
		var evType string
		var desc, url, entityHash, meta sql.NullString
		var created int64
		err := rows.Scan(&ev.ID, &ev.InvestigationID, &evType, &ev.Title, &desc, &ev.IdentityID,
			&url, &entityHash, &ev.Importance, &meta, &created)
		if err != nil {
			return fmt.Errorf("scanning timeline event: %w", err)
		}
		ev.EventType = TimelineEventType(evType)
		ev.Description, ev.URL, ev.EntityHash = desc.String, url.String, entityHash.String
		ev.CreatedAt = timeFromDB(created)
		if ev.Metadata, err = unmarshalMap(meta); err != nil {
			return fmt.Errorf("decoding metadata of event %s: %w", ev.ID, err)
		}
		if i, ok := byID[ev.InvestigationID]; ok {
			invs[i].Timeline = append(invs[i].Timeline, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating timeline event rows: %w", err)
	}
	return nil
}

func loadGraphs(ctx context.Context, db *sql.DB, invs []Investigation, byID map[string]int) error {
	nodeRows, err := db.QueryContext(ctx, `
		SELECT investigation_id, id, node_type, label, value, entity_type, color, metadata
		FROM graph_nodes ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying graph nodes: %w", err)
	}
	defer nodeRows.Close()
	for nodeRows.Next() {
		var invID string
		var n GraphNode
		var label, value, entityType, color, meta sql.NullString
		if err := nodeRows.Scan(&invID, &n.ID, &n.NodeType, &label, &value, &entityType, &color, &meta); err != nil {
			return fmt.Errorf("scanning graph node: %w", err)
		}
		n.Label, n.Value, n.EntityType, n.Color = label.String, value.String, EntityType(entityType.String), color.String
		if n.Metadata, err = unmarshalMap(meta); err != nil {
			return fmt.Errorf("decoding metadata of node %s: %w", n.ID, err)
		}
		if i, ok := byID[invID]; ok {
			invs[i].Graph.Nodes = append(invs[i].Graph.Nodes, n)
		}
	}
	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("iterating graph node rows: %w", err)
	}

	edgeRows, err := db.QueryContext(ctx, `
		SELECT investigation_id, id, source, target, relationship, label, weight, discovered_by, context
		FROM graph_edges ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("querying graph edges: %w", err)
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var invID string
		var e GraphEdge
		var label, discoveredBy, edgeCtx sql.NullString
		err := edgeRows.Scan(&invID, &e.ID, &e.Source, &e.Target, &e.Relationship, &label, &e.Weight, &discoveredBy, &edgeCtx)
		if err != nil {
			return fmt.Errorf("scanning graph edge: %w", err)
		}
		e.Label, e.DiscoveredBy, e.Context = label.String, discoveredBy.String, edgeCtx.String
		if i, ok := byID[invID]; ok {
			invs[i].Graph.Edges = append(invs[i].Graph.Edges, e)
		}
	}
	if err := edgeRows.Err(); err != nil {
		return fmt.Errorf("iterating graph edge rows: %w", err)
	}
	return nil
}

func timeToDB(t time.Time) int64 { return t.UnixNano() }

func timeFromDB(n int64) time.Time { return time.Unix(0, n) }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// marshalNullable encodes v as JSON, or returns nil for
// empty slices and maps so that the column is NULL.
func marshalNullable[T any](v T) (any, error) {
	switch val := any(v).(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalMap(col sql.NullString) (map[string]any, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(col.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
