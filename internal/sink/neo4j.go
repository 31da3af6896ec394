package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"provenance-scan/internal/domain"
)

// Neo4jSink pushes the provenance graph into a Neo4j instance with MERGE
// upserts keyed by each node's identity string, so re-pushing an unchanged
// snapshot leaves the graph untouched rather than duplicating it.
type Neo4jSink struct {
	driver neo4j.DriverWithContext
	clear  bool
}

// NewNeo4jSink opens a driver connection to uri with basic auth. If clear
// is true, every Push detaches and deletes every existing node before
// writing -- the scanner graph is rebuilt fresh each run, so a stale prior
// push never lingers.
func NewNeo4jSink(ctx context.Context, uri, user, password string, clear bool) (*Neo4jSink, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("sink: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("sink: neo4j connectivity: %w", err)
	}
	return &Neo4jSink{driver: driver, clear: clear}, nil
}

// Push clears the database (if configured) then MERGEs every node and
// relationship of g.
func (s *Neo4jSink) Push(ctx context.Context, snap *domain.Snapshot, g *domain.Graph) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if s.clear {
		if _, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
			return fmt.Errorf("sink: neo4j clear: %w", err)
		}
	}

	for _, n := range g.Nodes() {
		props := cleanProperties(n.Properties)
		props["neo_id"] = n.ID
		props["label"] = n.Label

		query := fmt.Sprintf("MERGE (n:`%s` {neo_id: $neo_id}) SET n += $props", string(n.Kind))
		if _, err := session.Run(ctx, query, map[string]any{
			"neo_id": n.ID,
			"props":  props,
		}); err != nil {
			return fmt.Errorf("sink: neo4j merge node %s: %w", n.ID, err)
		}
	}

	for _, e := range g.Edges() {
		relType := normalizeRelType(string(e.RelType))
		query := fmt.Sprintf(`
			MATCH (a {neo_id: $from})
			MATCH (b {neo_id: $to})
			MERGE (a)-[r:`+"`%s`"+`]->(b)
			SET r += $props
		`, relType)
		if _, err := session.Run(ctx, query, map[string]any{
			"from":  e.From,
			"to":    e.To,
			"props": cleanProperties(e.Properties),
		}); err != nil {
			return fmt.Errorf("sink: neo4j merge edge %s->%s: %w", e.From, e.To, err)
		}
	}

	return nil
}

// Close shuts down the driver.
func (s *Neo4jSink) Close() error {
	return s.driver.Close(context.Background())
}

// cleanProperties stringifies (with %v) any property value that is not a
// string, int, int64, float64, bool, or nil, matching the scanner's own
// scalar-only property discipline.
func cleanProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch v.(type) {
		case string, int, int64, float64, bool, nil:
			out[k] = v
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// normalizeRelType uppercases and underscores a relationship type for
// Cypher's backtick-quoted relationship syntax.
func normalizeRelType(rel string) string {
	if rel == "" {
		return "RELATED_TO"
	}
	return strings.ToUpper(strings.ReplaceAll(rel, " ", "_"))
}
