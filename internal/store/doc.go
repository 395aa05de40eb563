// Package store persists task rooms and their transcripts.
//
// # Backends
//
// Two SQL backends share one implementation (sqlStore) and differ only in
// their dialect:
//
//   - SQLiteStore: modernc.org/sqlite, WAL mode, the default
//   - PostgresStore: lib/pq, for deployments that already run Postgres
//
// Open picks one by driver name. MockStore is an in-memory Store for tests
// and can inject append and ping failures.
//
// # Data Models
//
//   - Room: a task room owned by one user, with a lifecycle status
//   - Message: one transcript entry, ordered by its Seq within the store
//
// System records written by the gateway itself carry a CustomType such as
// "runtime_error" or "llm_config_warning".
//
// # Ownership
//
// GetRoom takes the caller's user id and returns ErrNotFound for rooms owned
// by someone else, so handlers cannot tell "missing" from "not yours".
//
// # Testing
//
//	s := store.NewMockStore()
//	s.AppendErr = func(*store.Message) error { return errors.New("disk full") }
//
// Use NewSQLiteStore(":memory:") for tests against real SQL.
package store
