// Package store persists entity graphs in SQLite.
//
// Tables are generated from a schema.Model:
//   - one table per entity, keyed by a TEXT "id" column,
//   - one column per scalar field and one "<name>_id" column per reference,
//   - one link table per join collection with a position column that keeps
//     element order stable across reloads.
//
// # Deterministic Reads
//
// Every read orders rows explicitly (ORDER BY id, or position for link
// tables) with COLLATE BINARY, so loading the same database always yields
// the same graph.
//
// # Date-time Scale
//
// A datetime(N) field keeps N fractional-second digits. Values are
// truncated, never rounded, before they are written, so a reloaded value
// equals the original truncated to the column scale. When the dialect does
// not support a scale the value is stored at full dialect precision.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
