// Package storage implements the tiered store for sensor readings: a
// single write path that fans out to two storage tiers with different
// retention semantics, and tier-specific read paths.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐
//	│  Ingestion  │────▶│ TieredStore │
//	│   Watcher   │     │   (Put)     │
//	└─────────────┘     └──────┬──────┘
//	                  ┌────────┴────────┐
//	                  ▼                 ▼
//	           ┌────────────┐   ┌───────────────┐
//	           │ Hot Cache  │   │ Durable Store │
//	           │ TTL expiry │   │  append-only  │
//	           │  Recent()  │   │    Query()    │
//	           └────────────┘   └───────────────┘
//
// The storage layer provides:
//   - Dual writes that attempt both tiers even when one fails, with
//     TierWriteError naming the inconsistent tier
//   - A hot cache read path for recent readings, newest first
//   - A durable read path with keyset pagination stable under inserts
//   - Replay-safe writes (duplicate reading IDs are already-applied)
//   - Injected tier handles so the facade runs against the in-memory
//     fakes in memtier
//
// Write order is cache first, then durable. A reading that only
// reached the cache expires on its own when the retention window
// passes, while a reading that only reached the durable store is
// permanent but stays invisible to Recent until the window would have
// expired it anyway.
package storage
