//go:build !sqlite_cgo

package store

// Compiled by default. Uses the pure Go SQLite driver, so no C compiler is needed:
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// SQLiteDriverName is the database/sql driver registered for SQLite
	SQLiteDriverName = "sqlite"

	// SQLiteBuildMode describes the current build configuration
	SQLiteBuildMode = "purego"
)
