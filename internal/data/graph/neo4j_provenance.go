package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
	"github.com/yungbote/docprov-backend/internal/domain/provenance"
	"github.com/yungbote/docprov-backend/internal/pkg/ctxutil"
	"github.com/yungbote/docprov-backend/internal/pkg/dbctx"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
	"github.com/yungbote/docprov-backend/internal/pkg/neo4jdb"
)

// ProvenanceMirror copies exported PROV-O graphs into Neo4j so lineage can be
// queried with Cypher. Postgres stays the source of truth; a nil client makes
// every call a no-op.
type ProvenanceMirror struct {
	client     *neo4jdb.Client
	log        *logger.Logger
	provenance domainagg.ProvenanceTracker
}

func NewProvenanceMirror(client *neo4jdb.Client, log *logger.Logger, tracker domainagg.ProvenanceTracker) *ProvenanceMirror {
	if log == nil {
		log = logger.Nop()
	}
	return &ProvenanceMirror{client: client, log: log.With("component", "ProvenanceMirror"), provenance: tracker}
}

func (m *ProvenanceMirror) enabled() bool {
	return m != nil && m.client != nil && m.client.Driver != nil && m.provenance != nil
}

// SyncFamily exports the family graph and upserts it.
func (m *ProvenanceMirror) SyncFamily(ctx context.Context, rootID uuid.UUID) error {
	if !m.enabled() {
		return nil
	}
	ctx = ctxutil.Default(ctx)
	g, err := m.provenance.ExportGraph(dbctx.Context{Ctx: ctx}, rootID)
	if err != nil {
		return err
	}
	return UpsertProvenanceGraph(ctx, m.client, m.log, g)
}

// DropFamily removes every entity and activity node of the family. Agents are
// shared across families and stay.
func (m *ProvenanceMirror) DropFamily(ctx context.Context, rootID uuid.UUID) error {
	if !m.enabled() {
		return nil
	}
	ctx = ctxutil.Default(ctx)
	session := m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (n)
WHERE (n:ProvEntity OR n:ProvActivity) AND n.root_document_id = $root
DETACH DELETE n
`, map[string]any{"root": rootID.String()})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

// provenanceRows is the parameter payload for one family upsert.
type provenanceRows struct {
	entities   []map[string]any
	activities []map[string]any
	agents     []map[string]any
	edges      map[string][]map[string]any
}

// relationshipTypes maps PROV relations to Neo4j relationship types.
var relationshipTypes = map[string]string{
	provenance.RelWasDerivedFrom:    "WAS_DERIVED_FROM",
	provenance.RelWasGeneratedBy:    "WAS_GENERATED_BY",
	provenance.RelWasAssociatedWith: "WAS_ASSOCIATED_WITH",
	provenance.RelWasAttributedTo:   "WAS_ATTRIBUTED_TO",
	provenance.RelUsed:              "USED",
}

func buildProvenanceRows(g *provenance.Graph, now string) provenanceRows {
	root := g.RootDocumentID.String()
	out := provenanceRows{
		entities:   make([]map[string]any, 0, len(g.Entities)),
		activities: make([]map[string]any, 0, len(g.Activities)),
		agents:     make([]map[string]any, 0, len(g.Agents)),
		edges:      map[string][]map[string]any{},
	}
	for _, e := range g.Entities {
		out.entities = append(out.entities, map[string]any{
			"id":               e.ID,
			"kind":             e.Kind,
			"label":            truncateString(e.Label, 400),
			"generated_at":     e.GeneratedAtTime.UTC().Format(time.RFC3339Nano),
			"attributes_json":  encodeProps(e.Attributes),
			"root_document_id": root,
			"synced_at":        now,
		})
	}
	for _, a := range g.Activities {
		row := map[string]any{
			"id":               a.ID,
			"kind":             a.Kind,
			"started_at":       a.StartedAtTime.UTC().Format(time.RFC3339Nano),
			"ended_at":         nil,
			"processing_type":  a.Metadata.ProcessingType,
			"method_key":       a.Metadata.MethodKey,
			"parameters_json":  encodeProps(a.Metadata.Parameters),
			"root_document_id": root,
			"synced_at":        now,
		}
		if a.EndedAtTime != nil {
			row["ended_at"] = a.EndedAtTime.UTC().Format(time.RFC3339Nano)
		}
		out.activities = append(out.activities, row)
	}
	for _, ag := range g.Agents {
		out.agents = append(out.agents, map[string]any{
			"id":        ag.ID,
			"kind":      ag.Kind,
			"synced_at": now,
		})
	}
	for _, e := range g.Edges {
		rel, ok := relationshipTypes[e.Relation]
		if !ok || strings.TrimSpace(e.Subject) == "" || strings.TrimSpace(e.Object) == "" {
			continue
		}
		out.edges[rel] = append(out.edges[rel], map[string]any{"subject": e.Subject, "object": e.Object})
	}
	return out
}

// UpsertProvenanceGraph merges one exported family graph into Neo4j.
func UpsertProvenanceGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, g *provenance.Graph) error {
	if client == nil || client.Driver == nil {
		return nil
	}
	if g == nil || g.RootDocumentID == uuid.Nil {
		return fmt.Errorf("neo4j provenance sync: missing graph")
	}
	ctx = ctxutil.Default(ctx)
	rows := buildProvenanceRows(g, time.Now().UTC().Format(time.RFC3339Nano))

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	// Best-effort schema init.
	{
		stmts := []string{
			`CREATE CONSTRAINT prov_entity_id_unique IF NOT EXISTS FOR (e:ProvEntity) REQUIRE e.id IS UNIQUE`,
			`CREATE CONSTRAINT prov_activity_id_unique IF NOT EXISTS FOR (a:ProvActivity) REQUIRE a.id IS UNIQUE`,
			`CREATE CONSTRAINT prov_agent_id_unique IF NOT EXISTS FOR (a:ProvAgent) REQUIRE a.id IS UNIQUE`,
			`CREATE INDEX prov_entity_root IF NOT EXISTS FOR (e:ProvEntity) ON (e.root_document_id)`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				if log != nil {
					log.Warn("neo4j schema init failed (continuing)", "error", err)
				}
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		run := func(q string, params map[string]any) error {
			res, err := tx.Run(ctx, q, params)
			if err != nil {
				return err
			}
			_, err = res.Consume(ctx)
			return err
		}
		if len(rows.entities) > 0 {
			if err := run(`
UNWIND $rows AS r
MERGE (e:ProvEntity {id: r.id})
SET e += r
`, map[string]any{"rows": rows.entities}); err != nil {
				return nil, err
			}
		}
		if len(rows.activities) > 0 {
			if err := run(`
UNWIND $rows AS r
MERGE (a:ProvActivity {id: r.id})
SET a += r
`, map[string]any{"rows": rows.activities}); err != nil {
				return nil, err
			}
		}
		if len(rows.agents) > 0 {
			if err := run(`
UNWIND $rows AS r
MERGE (a:ProvAgent {id: r.id})
SET a += r
`, map[string]any{"rows": rows.agents}); err != nil {
				return nil, err
			}
		}
		// Relationship types cannot be parameters, so each gets its own statement.
		for rel, edges := range rows.edges {
			q := fmt.Sprintf(`
UNWIND $rows AS r
MATCH (a {id: r.subject})
MATCH (b {id: r.object})
MERGE (a)-[:%s]->(b)
`, rel)
			if err := run(q, map[string]any{"rows": edges}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func encodeProps(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return truncateString(string(b), 4000)
}

func truncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
