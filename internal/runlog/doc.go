// Package runlog records pipeline run history.
//
// SQLiteRecorder keeps the newest runs in a local SQLite file (WAL mode) so
// the admin server can report recent outcomes without touching PostgreSQL.
// NoopRecorder is used when no path is configured.
package runlog
