package sink

import (
	"database/sql"
	"encoding/json"

	"provenance-scan/internal/handler"
)

// ListSnapshots implements handler.SnapshotStore by reading back every
// snapshot stored in the database, newest first.
func (s *SQLiteSink) ListSnapshots() ([]handler.SnapshotSummary, error) {
	rows, err := s.db.Query(`SELECT snapshot_id, collected_at FROM snapshots ORDER BY collected_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []handler.SnapshotSummary
	for rows.Next() {
		var summary handler.SnapshotSummary
		if err := rows.Scan(&summary.SnapshotID, &summary.CollectedAt); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// SnapshotGraph reconstructs one snapshot's nodes and edges for the status
// surface's graph query endpoint. Returns sql.ErrNoRows if id is unknown.
func (s *SQLiteSink) SnapshotGraph(id string) (*handler.SnapshotGraph, error) {
	var exists string
	if err := s.db.QueryRow(`SELECT snapshot_id FROM snapshots WHERE snapshot_id = ?`, id).Scan(&exists); err != nil {
		return nil, err
	}

	nodeRows, err := s.db.Query(`SELECT id, kind, label, properties_json FROM nodes WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer nodeRows.Close()

	out := &handler.SnapshotGraph{SnapshotID: id}
	for nodeRows.Next() {
		var n handler.GraphNode
		var props sql.NullString
		if err := nodeRows.Scan(&n.ID, &n.Kind, &n.Label, &props); err != nil {
			return nil, err
		}
		if props.Valid {
			n.Properties = json.RawMessage(props.String)
		}
		out.Nodes = append(out.Nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, err
	}

	edgeRows, err := s.db.Query(`SELECT from_id, to_id, rel_type, properties_json FROM edges WHERE snapshot_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e handler.GraphEdge
		var props sql.NullString
		if err := edgeRows.Scan(&e.From, &e.To, &e.RelType, &props); err != nil {
			return nil, err
		}
		if props.Valid {
			e.Properties = json.RawMessage(props.String)
		}
		out.Edges = append(out.Edges, e)
	}
	return out, edgeRows.Err()
}
