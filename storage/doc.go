// Package storage is the Credential Store of the gateway: the single owner of
// authorization codes, access tokens, refresh tokens and registered clients.
//
// Entities live in a flat key-value space under fixed namespaces:
//
//	oauth:code:<code>
//	oauth:access:<token>
//	oauth:refresh:<token>
//	oauth:client:<client_id>
//
// Backends implement the small KV contract (put with TTL, get, delete and an
// atomic take). CredentialStore layers the typed operations on top of any KV and
// implements TokenStore, ClientStore and FlowStore.
//
// Backends are provided in subpackages:
//   - storage/memory: in-process map for development and tests
//   - storage/valkey: Valkey, the production default
//   - storage/redis: Redis via go-redis
//   - storage/database: SQL via gorm (PostgreSQL, SQLite)
//   - storage/mock: function-field KV for failure injection in tests
package storage
