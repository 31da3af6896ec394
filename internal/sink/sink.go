// Package sink persists a finished provenance graph, either locally for
// the scanner's own HTTP status surface or to a remote Neo4j instance for
// the graph visualization and query tooling the scanner feeds.
package sink

import (
	"context"

	"provenance-scan/internal/domain"
)

// Sink receives the graph built from a completed snapshot. Push is
// idempotent: pushing the same snapshot twice must not duplicate nodes or
// relationships (invariant I2/I6).
type Sink interface {
	Push(ctx context.Context, snap *domain.Snapshot, g *domain.Graph) error
	Close() error
}
