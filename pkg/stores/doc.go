// Package stores keeps the local deployment history.
//
// Runs and their steps are written to a SQLite database (modernc.org/sqlite,
// no cgo) whose schema is managed by golang-migrate from embedded migration
// files. Recorder adapts the store to engine.Reporter so every orchestrator
// run is persisted as it progresses; `deploy history` reads it back.
package stores
