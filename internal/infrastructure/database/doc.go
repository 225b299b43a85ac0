// Package database manages the SQLite connection for Roomkit.
//
// It handles connection setup (WAL mode, busy timeout, single-writer
// pool), embedded schema migrations, and health checks. All persistence
// in Roomkit goes through the *DB handle this package provides.
package database
