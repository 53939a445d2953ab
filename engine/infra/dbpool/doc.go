// Package dbpool holds the contract shared by every backing-store pool: the
// unified error taxonomy, error context propagation, per-pool metrics,
// connection guards, the pool lifecycle, and the health-check protocol.
//
// Backend drivers (sqlite, cache, timeseries) depend on this package; it never
// depends on them. A supervising process holds pools through the Pool
// interface and aggregates their health with a Registry.
package dbpool
