package migrations

import "embed"

// FS contains embedded SQLite migrations for task-session storage.
//
//go:embed *.sql
var FS embed.FS
