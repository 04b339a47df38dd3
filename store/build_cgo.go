//go:build sqlite_cgo

package store

// Compiled with the sqlite_cgo tag. Uses the cgo SQLite driver:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// SQLiteDriverName is the database/sql driver registered for SQLite
	SQLiteDriverName = "sqlite3"

	// SQLiteBuildMode describes the current build configuration
	SQLiteBuildMode = "cgo"
)
