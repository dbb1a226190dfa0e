// Package sqlstore is a SQLite-backed implementation of the query
// backend, used to cross-check the in-memory store and to compare
// timings against a conventional database.
//
// Every registered store becomes a table named after it, with one column
// per schema field and an index per indexed field. The fsgrid_stores
// table records the schema each table was created with, so a database
// written by one run can be queried by the next.
//
// # Determinism
//
//   - Queries are compiled by querysql; every statement carries an
//     ORDER BY ... COLLATE BINARY, so row order matches a single-partition
//     in-memory store and group order matches in every case.
//   - Reference fields have no column affinity. Integer sector ids stay
//     integers and labels stay text, and joins compare storage classes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package sqlstore
