// Package domain defines the core domain types for the provenance scanner:
// the typed directed multigraph of observed hosts, networks, processes,
// users, and software, plus the snapshot and per-host extractor records
// the graph is built from.
//
// # Identity
//
// Every Node carries a Kind and a globally unique identity string of the
// form "Kind:key". Host-scoped entities (Process, Socket, Port, User, ...)
// embed the owning host in their key to prevent cross-host collisions;
// shared entities (IP, Network, OSFamily, SoftwareFamily, Role, Group) are
// keyed without a host and are deduplicated globally.
//
// # Design Principles
//
// - Nodes carry only scalar properties (string, number, bool, nil); complex
// values are flattened or stringified by the graph builder.
// - No database or external dependencies.
// - A Graph is a per-run object: an arena-style identity-keyed map, not a
// pointer-linked structure, so merging and de-duplication are hashmap
// lookups.
package domain
