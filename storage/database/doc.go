// Package database provides a SQL-backed storage.KV on top of gorm, for
// deployments that want credentials in PostgreSQL (or SQLite for single-node
// setups and tests) instead of a key-value server.
//
// Entries live in a single table keyed by the namespaced key. Expiry is stored
// as a timestamp, filtered on read and purged periodically.
package database
