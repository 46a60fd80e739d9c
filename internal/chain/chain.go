// Package chain implements the hash-linked donation ledger.
//
// Each Block commits to a donation fingerprint and to the hash of the block
// before it; the first block links to the literal sentinel "GENESIS". Any
// change to a recorded block breaks its own hash or the link held by every
// block after it, which Validate detects.
//
// Four Store implementations back a Ledger:
//   - MemoryStore: in-process, for tests and development.
//   - FileStore: a JSON array on disk.
//   - SQLiteStore: embedded single-node durability.
//   - PostgresStore: shared durable storage for production.
package chain
