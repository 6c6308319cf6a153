// Package store implements the strata versioning engine on top of SQLite.
//
// The store holds four things:
//   - Series registry: (name, labels) identity to series id, with a
//     process-lifetime append-only cache.
//   - Batch ledger: one immutable row per ingestion batch.
//   - Version log: every value-version of every cell, append-only except
//     for the is_current flag flip.
//   - Projections: the flat ("best known value per instant") and
//     overlapping ("full revision history") read views.
//
// # Versioning invariants
//
//   - At most one version per cell is current. Enforced twice: by the
//     update protocol (flip and insert inside one transaction) and by a
//     partial unique index on the cell key where is_current = 1.
//   - value_id is assigned once by the substrate and never reused.
//   - valid_time_end, when present, is strictly after valid_time.
//   - Stored tags and annotations are canonical; the canonical empty value
//     is SQL NULL.
//
// # Concurrency
//
// Distinct cells touched by one update call are locked in the typed total
// order over their keys (model.CellKey.Compare), so concurrent calls over
// overlapping cell sets cannot deadlock. The per-cell locks are in-process;
// the SQLite transaction (immediate mode, single-writer pool) provides
// atomicity and durability underneath them. Transient SQLITE_BUSY failures
// are retried a bounded number of times with backoff before a retryable
// error is surfaced.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: versions must reference real batches and series
package store
