// Package store implements a partitioned, queryable in-memory entity
// store.
//
// Entities are routed to partitions by an fnv-32a hash of their id. Each
// partition keeps an equality index (value key to id set) for every
// indexed field of the store's schema; indexes are updated incrementally
// as a Streamer flushes batches.
//
// Concurrency model:
//   - One writer at a time. A Streamer holds the store's writer lock from
//     NewStreamer until Close or Abort and mutates a private copy of the
//     partitions it touches.
//   - Readers never lock. Scan and Query load the published snapshot from
//     an atomic pointer and work against it until they finish.
//   - Close publishes the new snapshot in one atomic store, so a reader
//     sees either all of a load or none of it.
//
// Query supports equality filters (posting list intersection, falling
// back to a predicate scan for non-indexed fields), group-by-count and
// hash joins against a reference store resolved through a Catalog.
package store
