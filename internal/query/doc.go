// Package query defines the declarative query description shared by the
// in-memory store, the SQL compiler, the SQLite backend and the runner.
//
// A Request is a tagged variant: its Kind selects one of the execution
// paths (scan, filter, filter and group, join and group, join) and the
// remaining fields carry the parameters that path needs. Results are
// Rows of named columns.
package query
