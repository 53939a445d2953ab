// Package sqlite provides the relational pool: a database/sql pool over the
// pure-Go modernc.org/sqlite driver with guarded acquisition, timed
// statement wrappers and a SELECT 1 health check.
//
// URLs take the form "sqlite:<path>" or "sqlite::memory:". Each in-memory pool
// gets its own uniquely named shared-cache database so connections of one pool
// see the same data while separate pools stay isolated.
package sqlite
