package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"provenance-scan/internal/domain"
)

// SQLiteSink is the local Graph Sink: every snapshot's nodes and edges are
// upserted into a SQLite database, keyed the same way the graph itself is
// keyed, so a re-push of an unchanged snapshot is a no-op and a changed one
// overwrites in place rather than duplicating (invariant I2/I6).
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (creating if needed) the SQLite database at path and
// ensures its schema exists.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sink: create data dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer avoids SQLITE_BUSY

	s := &SQLiteSink{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	snapshot_id  TEXT PRIMARY KEY,
	collected_at TEXT NOT NULL,
	raw_json     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS nodes (
	id              TEXT PRIMARY KEY,
	snapshot_id     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	label           TEXT NOT NULL,
	properties_json TEXT,
	raw_extras_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind);
CREATE INDEX IF NOT EXISTS idx_nodes_snapshot ON nodes(snapshot_id);

CREATE TABLE IF NOT EXISTS edges (
	from_id         TEXT NOT NULL,
	to_id           TEXT NOT NULL,
	rel_type        TEXT NOT NULL,
	snapshot_id     TEXT NOT NULL,
	properties_json TEXT,
	PRIMARY KEY (from_id, to_id, rel_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_snapshot ON edges(snapshot_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("sink: migrate schema: %w", err)
	}
	return nil
}

// Push upserts every node and edge of g, scoped to snap.SnapshotID.
func (s *SQLiteSink) Push(ctx context.Context, snap *domain.Snapshot, g *domain.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin tx: %w", err)
	}
	defer tx.Rollback()

	rawSnapshot, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("sink: marshal snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, collected_at, raw_json)
		VALUES (?, ?, ?)
		ON CONFLICT(snapshot_id) DO UPDATE SET collected_at = excluded.collected_at, raw_json = excluded.raw_json
	`, snap.SnapshotID, snap.CollectedAt.Format("2006-01-02T15:04:05Z07:00"), string(rawSnapshot)); err != nil {
		return fmt.Errorf("sink: upsert snapshot: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (id, snapshot_id, kind, label, properties_json, raw_extras_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			kind = excluded.kind,
			label = excluded.label,
			properties_json = excluded.properties_json,
			raw_extras_json = excluded.raw_extras_json
	`)
	if err != nil {
		return fmt.Errorf("sink: prepare node upsert: %w", err)
	}
	defer nodeStmt.Close()

	for _, n := range g.Nodes() {
		propsJSON, err := marshalToNull(n.Properties)
		if err != nil {
			return fmt.Errorf("sink: marshal properties for %s: %w", n.ID, err)
		}
		extrasJSON, err := marshalToNull(n.RawExtras)
		if err != nil {
			return fmt.Errorf("sink: marshal raw extras for %s: %w", n.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx, n.ID, snap.SnapshotID, string(n.Kind), n.Label, propsJSON, extrasJSON); err != nil {
			return fmt.Errorf("sink: upsert node %s: %w", n.ID, err)
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO edges (from_id, to_id, rel_type, snapshot_id, properties_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, rel_type) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			properties_json = excluded.properties_json
	`)
	if err != nil {
		return fmt.Errorf("sink: prepare edge upsert: %w", err)
	}
	defer edgeStmt.Close()

	for _, e := range g.Edges() {
		propsJSON, err := marshalToNull(e.Properties)
		if err != nil {
			return fmt.Errorf("sink: marshal properties for edge %s->%s: %w", e.From, e.To, err)
		}
		if _, err := edgeStmt.ExecContext(ctx, e.From, e.To, string(e.RelType), snap.SnapshotID, propsJSON); err != nil {
			return fmt.Errorf("sink: upsert edge %s->%s: %w", e.From, e.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// marshalToNull marshals v to a JSON string, returning nil (stored as SQL
// NULL) for a nil or empty map so callers don't persist "{}" noise.
func marshalToNull(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
