// Package store provides SQLite-backed storage for scripts and their
// template images.
//
// A script row holds its metadata, its ordered steps (JSON), its source
// text and the generated-region metadata that lets a later resynthesis find
// the manual region again. Templates are rows keyed by (script, name) and
// follow their script on rename and delete.
//
// # Consistency
//
//   - SaveScript writes steps, code and code metadata in one transaction,
//     so a reader never sees steps from one save and code from another
//   - Template names are chosen inside the upload transaction
//     (template.png, template_1.png, ...)
//   - Timestamps are stored as Unix nanoseconds so ordering is numeric
//
// # Connection
//
// Pragmas are passed as go-sqlite3 DSN parameters (WAL journal,
// synchronous=NORMAL, 5 s busy timeout, foreign keys on) and the pool is
// limited to one connection. Schema changes are numbered migrations
// recorded in PRAGMA user_version.
package store
