// Package journal keeps a history of query runs in SQLite.
//
// Every invocation that executes queries records one run (a UUIDv7 id, start
// time, mode and target) and one row per query outcome, in execution order.
// The history answers "what did we run against this database last week and
// what came back" without keeping the reports themselves around.
//
// The database is opened in WAL mode with a single connection; the schema is
// embedded and upgraded in place through PRAGMA user_version.
package journal
