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
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures a Hivemind.
type Options struct {
	MaxEntities        int            `json:"max_entities,omitempty"`
	EvictionPolicy     EvictionPolicy `json:"eviction_policy,omitempty"`
	ContextRadius      int            `json:"context_radius,omitempty"`
	DefaultPhoneRegion string         `json:"default_phone_region,omitempty"`
	Layout             *LayoutParams  `json:"layout,omitempty"`

	// Clock; defaults to time.Now.
	Now func() time.Time `json:"-"`
}

// Hivemind is the intelligence correlation engine: it turns text into
// entities, correlates them across research identities, and keeps the
// investigations built from them. If opened on a repository folder,
// every change is written through to its database.
//
// The zero value is NOT valid; use Open() to obtain a valid value.
type Hivemind struct {
	repoDir string
	id      uuid.UUID
	opts    Options
	log     *zap.Logger

	store *Store
	invs  *Investigations

	// serialize change-then-persist sequences per entity and per
	// investigation, so that rows are never overwritten by older copies
	entityLocks *mapMutex[string]
	invLocks    *mapMutex[string]

	layoutsMu sync.Mutex
	layouts   map[string]*Layout

	db   *sql.DB // nil if not persisted
	dbMu sync.Mutex
}

// Open opens (creating if necessary) the repository in repoDir and loads
// its contents. If repoDir is empty, nothing is persisted. Hivemind values
// should always be Close()'d when done.
func Open(ctx context.Context, repoDir string, opts Options) (*Hivemind, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ContextRadius == 0 {
		opts.ContextRadius = DefaultContextRadius
	}
	if opts.DefaultPhoneRegion == "" {
		opts.DefaultPhoneRegion = DefaultPhoneRegion
	}

	logger := Log.Named("hivemind")

	store, err := NewStore(StoreOptions{
		MaxEntities: opts.MaxEntities,
		Policy:      opts.EvictionPolicy,
		Now:         opts.Now,
		Logger:      logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}

	hm := &Hivemind{
		repoDir:     repoDir,
		id:          uuid.New(),
		opts:        opts,
		log:         logger,
		store:       store,
		invs:        NewInvestigations(opts.Now, logger.Named("investigations")),
		entityLocks: newMapMutex[string](),
		invLocks:    newMapMutex[string](),
		layouts:     make(map[string]*Layout),
	}

	if repoDir == "" {
		return hm, nil
	}

	if err := os.MkdirAll(repoDir, 0755); err != nil {
		return nil, fmt.Errorf("creating repo folder: %w", err)
	}
	db, err := openAndProvisionDB(ctx, repoDir)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Warn("closing database due to error when opening repo", zap.Error(err))
			db.Close()
		}
	}()

	if hm.id, err = loadRepoID(ctx, db); err != nil {
		return nil, fmt.Errorf("loading repo ID: %w", err)
	}

	ents, err := loadEntities(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	if dropped := store.Restore(ents); len(dropped) > 0 {
		err = withTx(ctx, db, func(tx *sql.Tx) error {
			return deleteEntities(ctx, tx, dropped)
		})
		if err != nil {
			return nil, fmt.Errorf("deleting entities beyond capacity: %w", err)
		}
		logger.Warn("repository holds more entities than the store allows; dropped least recently seen",
			zap.Int("stored", len(ents)),
			zap.Int("max_entities", store.capacity),
			zap.Int("dropped", len(dropped)))
	}

	invs, err := loadInvestigations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("loading investigations: %w", err)
	}
	if err = hm.invs.Restore(invs); err != nil {
		return nil, fmt.Errorf("restoring investigations: %w", err)
	}

	hm.db = db
	logger.Info("opened repository",
		zap.String("repo", repoDir),
		zap.String("id", hm.id.String()),
		zap.Int("entities", len(ents)),
		zap.Int("investigations", len(invs)))

	return hm, nil
}

func (hm *Hivemind) String() string { return fmt.Sprintf("%s:%s", hm.id, hm.repoDir) }

// ID returns the repository's persistent identifier.
func (hm *Hivemind) ID() uuid.UUID { return hm.id }

// Dir returns the repository folder, if any.
func (hm *Hivemind) Dir() string { return hm.repoDir }

// Close frees up resources allocated from Open.
func (hm *Hivemind) Close() error {
	hm.dbMu.Lock()
	defer hm.dbMu.Unlock()
	if hm.db != nil {
		err := hm.db.Close()
		hm.db = nil
		return err
	}
	return nil
}

// persist runs fn in a database transaction, if there is a database.
func (hm *Hivemind) persist(ctx context.Context, fn func(*sql.Tx) error) error {
	hm.dbMu.Lock()
	defer hm.dbMu.Unlock()
	if hm.db == nil {
		return nil
	}
	return withTx(ctx, hm.db, fn)
}

// ExtractRequest is text (or an HTML page) observed by an identity.
type ExtractRequest struct {
	Text       string `json:"text"`
	IdentityID string `json:"identity_id"`
	URL        string `json:"url,omitempty"`

	// If true, Text is an HTML document; its visible text
	// and link targets are scanned.
	HTML bool `json:"html,omitempty"`

	// If set, newly discovered entities are recorded on this
	// investigation's timeline and linked into its graph.
	InvestigationID string `json:"investigation_id,omitempty"`
}

// ExtractResult reports what an extraction stored.
type ExtractResult struct {
	Entities        []Entity         `json:"entities"`
	NewCount        int              `json:"new_count"`
	UpdatedCount    int              `json:"updated_count"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
	Evicted         []string         `json:"evicted,omitempty"`

	// candidates not stored because the store is full and rejects new entities
	Rejected []Candidate `json:"rejected,omitempty"`
}

// ExtractEntitiesFromText finds the entities in the request's text and
// records each as observed by the request's identity. Repeating the same
// request never adds duplicate entities or sources.
func (hm *Hivemind) ExtractEntitiesFromText(ctx context.Context, req ExtractRequest) (ExtractResult, error) {
	if req.IdentityID == "" {
		return ExtractResult{}, fmt.Errorf("%w: identity_id is required", ErrInvalid)
	}

	texts := []string{req.Text}
	if req.HTML {
		text, err := PageText(req.Text)
		if err != nil {
			return ExtractResult{}, err
		}
		links, err := PageLinks(req.Text, req.URL)
		if err != nil {
			return ExtractResult{}, err
		}
		texts = []string{text, strings.Join(links, "\n")}
	}

	batches, err := ExtractBatch(ctx, texts, ExtractOptions{ContextRadius: hm.opts.ContextRadius})
	if err != nil {
		return ExtractResult{}, err
	}

	result := ExtractResult{Entities: []Entity{}}
	seen := make(map[string]struct{})
	for _, batch := range batches {
		for _, c := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			hash := ContentHash(c.Type, c.Value)
			if _, dup := seen[hash]; dup {
				continue
			}
			seen[hash] = struct{}{}

			ent, res, err := hm.upsert(ctx, c.Type, c.Value, Source{
				IdentityID: req.IdentityID,
				URL:        req.URL,
				Context:    c.Context,
			})
			if errors.Is(err, ErrCapacity) {
				result.Rejected = append(result.Rejected, c)
				continue
			}
			if err != nil {
				return result, err
			}
			result.Entities = append(result.Entities, ent)
			if res.Created {
				result.NewCount++
			} else {
				result.UpdatedCount++
			}
			if res.CrossReference {
				if cr, ok := crossReferenceOf(ent); ok {
					result.CrossReferences = append(result.CrossReferences, cr)
				}
			}
			result.Evicted = append(result.Evicted, res.Evicted...)

			if req.InvestigationID != "" && res.Created {
				if err := hm.recordDiscovery(ctx, req, ent); err != nil {
					return result, err
				}
			}
		}
	}

	hm.log.Debug("extracted entities",
		zap.String("identity", req.IdentityID),
		zap.String("url", req.URL),
		zap.Int("new", result.NewCount),
		zap.Int("updated", result.UpdatedCount))
	if len(result.Rejected) > 0 {
		hm.log.Warn("entity store full; candidates rejected",
			zap.String("identity", req.IdentityID),
			zap.Int("rejected", len(result.Rejected)))
	}

	return result, nil
}

func (hm *Hivemind) recordDiscovery(ctx context.Context, req ExtractRequest, ent Entity) error {
	_, err := hm.AddTimelineEvent(ctx, req.InvestigationID, NewTimelineEvent{
		EventType:   string(TimelineEntityDiscovered),
		Title:       fmt.Sprintf("Discovered %s %s", ent.Type, ent.Value),
		IdentityID:  req.IdentityID,
		URL:         req.URL,
		EntityHash:  ent.Hash,
		Importance:  MinImportance,
		Description: firstContext(ent),
	})
	if err != nil {
		return err
	}
	_, err = hm.LinkEntity(ctx, req.InvestigationID, ent.Hash)
	return err
}

func firstContext(ent Entity) string {
	for _, src := range ent.Sources {
		if src.Context != "" {
			return src.Context
		}
	}
	return ""
}

// AddEntity records a manually entered entity. The value is normalized
// and must be valid for its type.
func (hm *Hivemind) AddEntity(ctx context.Context, t EntityType, value string, src Source) (Entity, UpsertResult, error) {
	if _, err := ParseEntityType(string(t)); err != nil {
		return Entity{}, UpsertResult{}, err
	}
	canonical := Normalize(value, t)
	if !Validate(canonical, t) {
		return Entity{}, UpsertResult{}, fmt.Errorf("%w: '%s' is not a valid %s", ErrInvalid, value, t)
	}
	return hm.upsert(ctx, t, canonical, src)
}

func (hm *Hivemind) upsert(ctx context.Context, t EntityType, value string, src Source) (Entity, UpsertResult, error) {
	hash := ContentHash(t, value)
	hm.entityLocks.Lock(hash)
	defer hm.entityLocks.Unlock(hash)

	ent, res, err := hm.store.Upsert(t, value, src)
	if err != nil {
		return Entity{}, UpsertResult{}, err
	}
	err = hm.persist(ctx, func(tx *sql.Tx) error {
		if err := deleteEntities(ctx, tx, res.Evicted); err != nil {
			return err
		}
		return saveEntity(ctx, tx, ent)
	})
	if err != nil {
		return ent, res, fmt.Errorf("persisting entity: %w", err)
	}
	return ent, res, nil
}

// Entities lists stored entities, most recently seen first.
func (hm *Hivemind) Entities(filter EntityFilter) []Entity { return hm.store.List(filter) }

// Entity returns one stored entity.
func (hm *Hivemind) Entity(hash string) (Entity, error) { return hm.store.Get(hash) }

// CrossReferences returns the entities seen by more than one identity.
func (hm *Hivemind) CrossReferences() []CrossReference { return hm.store.CrossReferences() }

// Subscribe returns a channel of entity store events until the
// returned function is called.
func (hm *Hivemind) Subscribe(buffer int) (<-chan Event, func()) { return hm.store.Subscribe(buffer) }

// ClearEntities removes all entities. It refuses to do anything
// unless confirm is true.
func (hm *Hivemind) ClearEntities(ctx context.Context, confirm bool) (int, error) {
	if !confirm {
		return 0, fmt.Errorf("clearing all entities: %w", ErrConfirmationRequired)
	}
	n := hm.store.Clear()
	err := hm.persist(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM entities`)
		return err
	})
	Log.Named(auditLoggerName).Warn("cleared all entities", zap.Int("count", n), zap.String("repo", hm.repoDir))
	if err != nil {
		return n, fmt.Errorf("clearing stored entities: %w", err)
	}
	return n, nil
}

// DeleteEntity removes one entity.
func (hm *Hivemind) DeleteEntity(ctx context.Context, hash string) error {
	hm.entityLocks.Lock(hash)
	defer hm.entityLocks.Unlock(hash)
	if err := hm.store.Delete(hash); err != nil {
		return err
	}
	Log.Named(auditLoggerName).Info("deleted entity", zap.String("hash", hash))
	return hm.persist(ctx, func(tx *sql.Tx) error {
		return deleteEntities(ctx, tx, []string{hash})
	})
}

// AnnotateEntity sets user tags, notes, or risk score on an entity.
func (hm *Hivemind) AnnotateEntity(ctx context.Context, hash string, ann EntityAnnotation) (Entity, error) {
	hm.entityLocks.Lock(hash)
	defer hm.entityLocks.Unlock(hash)
	ent, err := hm.store.Annotate(hash, ann)
	if err != nil {
		return Entity{}, err
	}
	return ent, hm.persist(ctx, func(tx *sql.Tx) error { return saveEntity(ctx, tx, ent) })
}

// Status summarizes the hivemind.
type Status struct {
	RepoID         string      `json:"repo_id"`
	RepoDir        string      `json:"repo_dir,omitempty"`
	Persistent     bool        `json:"persistent"`
	Store          StoreStatus `json:"store"`
	Investigations int         `json:"investigations"`
}

// Status returns a summary of the hivemind.
func (hm *Hivemind) Status() Status {
	hm.dbMu.Lock()
	persistent := hm.db != nil
	hm.dbMu.Unlock()
	return Status{
		RepoID:         hm.id.String(),
		RepoDir:        hm.repoDir,
		Persistent:     persistent,
		Store:          hm.store.Status(),
		Investigations: len(hm.invs.List()),
	}
}

// AnalyzePhone describes a phone number, assuming the configured
// default region if region is empty.
func (hm *Hivemind) AnalyzePhone(number, region string) (PhoneIntel, error) {
	if region == "" {
		region = hm.opts.DefaultPhoneRegion
	}
	return AnalyzePhone(number, region)
}

// changeInvestigation runs fn, which changes investigation id, and then
// stores the investigation, all while holding the investigation's lock.
func (hm *Hivemind) changeInvestigation(ctx context.Context, id string, fn func() error) error {
	return hm.invLocks.with(id, func() error {
		if err := fn(); err != nil {
			return err
		}
		inv, err := hm.invs.Get(id)
		if err != nil {
			return err
		}
		if err := hm.persist(ctx, func(tx *sql.Tx) error { return saveInvestigation(ctx, tx, inv) }); err != nil {
			return fmt.Errorf("persisting investigation: %w", err)
		}
		return nil
	})
}

// CreateInvestigation starts a new investigation.
func (hm *Hivemind) CreateInvestigation(ctx context.Context, name, description string) (Investigation, error) {
	inv, err := hm.invs.Create(name, description)
	if err != nil {
		return Investigation{}, err
	}
	err = hm.changeInvestigation(ctx, inv.ID, func() error { return nil })
	return inv, err
}

// Investigations summarizes all investigations.
func (hm *Hivemind) Investigations() []InvestigationSummary { return hm.invs.List() }

// Investigation returns one investigation in full.
func (hm *Hivemind) Investigation(id string) (Investigation, error) { return hm.invs.Get(id) }

// DeleteInvestigation removes an investigation and everything in it.
func (hm *Hivemind) DeleteInvestigation(ctx context.Context, id string) error {
	return hm.invLocks.with(id, func() error {
		if err := hm.invs.Delete(id); err != nil {
			return err
		}
		hm.layoutsMu.Lock()
		delete(hm.layouts, id)
		hm.layoutsMu.Unlock()
		Log.Named(auditLoggerName).Info("deleted investigation", zap.String("id", id))
		return hm.persist(ctx, func(tx *sql.Tx) error { return deleteInvestigation(ctx, tx, id) })
	})
}

// UpdateInvestigationStatus changes the lifecycle status of an investigation.
func (hm *Hivemind) UpdateInvestigationStatus(ctx context.Context, id string, status InvestigationStatus) (InvestigationSummary, error) {
	var out InvestigationSummary
	err := hm.changeInvestigation(ctx, id, func() error {
		var err error
		out, err = hm.invs.UpdateStatus(id, status)
		return err
	})
	return out, err
}

// AddTimelineEvent records an event on an investigation's timeline.
func (hm *Hivemind) AddTimelineEvent(ctx context.Context, id string, ev NewTimelineEvent) (TimelineEvent, error) {
	var out TimelineEvent
	err := hm.changeInvestigation(ctx, id, func() error {
		var err error
		out, err = hm.invs.AddTimelineEvent(id, ev)
		return err
	})
	return out, err
}

// Timeline returns an investigation's timeline events.
func (hm *Hivemind) Timeline(id string, q TimelineQuery) ([]TimelineEvent, error) {
	return hm.invs.Timeline(id, q)
}

// AddGraphNode adds a node to an investigation's graph.
func (hm *Hivemind) AddGraphNode(ctx context.Context, id string, node GraphNode) (GraphNode, error) {
	var out GraphNode
	err := hm.changeInvestigation(ctx, id, func() error {
		var err error
		out, err = hm.invs.AddGraphNode(id, node)
		return err
	})
	return out, err
}

// AddGraphEdge adds an edge to an investigation's graph.
func (hm *Hivemind) AddGraphEdge(ctx context.Context, id string, edge GraphEdge) (GraphEdge, error) {
	var out GraphEdge
	err := hm.changeInvestigation(ctx, id, func() error {
		var err error
		out, err = hm.invs.AddGraphEdge(id, edge)
		return err
	})
	return out, err
}

// Graph returns an investigation's graph.
func (hm *Hivemind) Graph(id string) (Graph, error) { return hm.invs.Graph(id) }

// LinkEntity adds a stored entity, the identities that found it, and
// the pages it was found on to an investigation's graph.
func (hm *Hivemind) LinkEntity(ctx context.Context, id, entityHash string) (LinkResult, error) {
	ent, err := hm.store.Get(entityHash)
	if err != nil {
		return LinkResult{}, err
	}
	var out LinkResult
	err = hm.changeInvestigation(ctx, id, func() error {
		var err error
		out, err = hm.invs.LinkEntity(id, ent)
		return err
	})
	return out, err
}

// ExportInvestigation serializes an investigation as "json" or "markdown".
func (hm *Hivemind) ExportInvestigation(id, format string) (InvestigationExport, error) {
	return hm.invs.Export(id, format)
}

// GraphHighlight returns a node of an investigation's graph
// together with its neighbors.
func (hm *Hivemind) GraphHighlight(id, nodeID string) (Highlight, error) {
	g, err := hm.invs.Graph(id)
	if err != nil {
		return Highlight{}, err
	}
	return g.Highlight(nodeID)
}

func (hm *Hivemind) layout(id string) (*Layout, error) {
	g, err := hm.invs.Graph(id)
	if err != nil {
		return nil, err
	}
	hm.layoutsMu.Lock()
	l, ok := hm.layouts[id]
	if !ok {
		params := DefaultLayoutParams()
		if hm.opts.Layout != nil {
			params = *hm.opts.Layout
		}
		l = NewLayout(params, uint64(hm.opts.Now().UnixNano()))
		hm.layouts[id] = l
	}
	hm.layoutsMu.Unlock()
	l.SetGraph(g)
	return l, nil
}

// GraphLayout lays out an investigation's graph, running the
// simulation until it settles or ctx is done.
func (hm *Hivemind) GraphLayout(ctx context.Context, id string) (LayoutSnapshot, error) {
	l, err := hm.layout(id)
	if err != nil {
		return LayoutSnapshot{}, err
	}
	if _, err := l.Settle(ctx); err != nil {
		return l.Snapshot(), err
	}
	return l.Snapshot(), nil
}

// PinGraphNode pins a node of an investigation's layout, at (x, y)
// if given or else where it is, and lays the graph out again.
func (hm *Hivemind) PinGraphNode(ctx context.Context, id, nodeID string, x, y *float64) (LayoutSnapshot, error) {
	l, err := hm.layout(id)
	if err != nil {
		return LayoutSnapshot{}, err
	}
	if x != nil && y != nil {
		err = l.Drag(nodeID, *x, *y)
	} else {
		err = l.Pin(nodeID)
	}
	if err != nil {
		return LayoutSnapshot{}, err
	}
	_, err = l.Settle(ctx)
	return l.Snapshot(), err
}

// UnpinGraphNode releases a pinned node and lays the graph out again.
func (hm *Hivemind) UnpinGraphNode(ctx context.Context, id, nodeID string) (LayoutSnapshot, error) {
	l, err := hm.layout(id)
	if err != nil {
		return LayoutSnapshot{}, err
	}
	if err := l.Unpin(nodeID); err != nil {
		return LayoutSnapshot{}, err
	}
	_, err = l.Settle(ctx)
	return l.Snapshot(), err
}
