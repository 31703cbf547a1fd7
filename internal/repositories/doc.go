// Package repositories implements durable storage for playback queues.
//
// Every backend implements [QueueStore]: a latest-committed read and a revision-gated write.
// The write is the concurrency controller of the system; it either commits atomically or reports [shared.ErrRevisionConflict] without mutating anything.
//
// Key Implementations:
//   - [QueueRepository] : SQLite persistence; the compare-and-swap is a single upsert whose update arm is guarded by the expected revision
//   - [PebbleQueueStore] : embedded Pebble persistence; the compare-and-swap is a read-compare-write under a per-identity lock
//
// [Open] selects a backend from [shared.DatabaseConfig].
// Every call is bounded by the configured store timeout and store failures are wrapped with [shared.ErrStoreUnavailable].
package repositories
