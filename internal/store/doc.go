// Package store provides persistent storage for the dxtr server using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - HistoryStore: bounded, expiring conversation history per session
//   - StateStore: session state snapshots and artifact content
//   - RankingStore: cached per-item relevance scores
//   - FactStore: per-user fact lists for profile synthesis
//
// SQLiteStore implements all interfaces in a single struct; MemoryStore is
// a drop-in in-memory implementation for tests and dev mode.
//
// # Data Models
//
//   - SessionKey: (user, session) identity for all per-conversation state
//   - Message: one turn element, append-only once stored
//   - SessionState: per-session flags, profile text, artifact registry,
//     pending-display handles (stored as a JSON blob)
//   - Artifact/ArtifactMeta: computed results keyed by integer handle,
//     content stored separately from metadata
//   - RankingRecord: one cached relevance score with criteria keying
//   - UserFact: one remembered fact about a user
//
// # History semantics
//
// AppendHistory runs insert + head-trim + TTL refresh in one transaction,
// so a turn's messages are all-or-nothing and an active session never
// expires. SQLite has no native key TTL; expiry is logical: an expires_at
// row per session, refreshed on every append, checked on every read, and
// stale rows discarded on the next append.
//
// # Ranking semantics
//
// Profile-type rows are unique on (user, item, batch, type, hash) via a
// partial index and inserted with INSERT OR IGNORE, so re-storing a cached
// batch never duplicates rows or overwrites scores. Request-type rows are
// additive; deduplication happens at read time via fuzzy criteria matching
// in the rankcache package.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:", ...) for integration tests with real
// SQLite, or NewMemoryStore for pure in-memory unit tests.
//
// # Error Handling
//
// ErrNotFound is returned when a requested entity does not exist. Unknown
// sessions are not errors: history reads as empty and state reads as a
// fresh SessionState. All methods accept context.Context for cancellation.
package store
