package migrations

import "embed"

// FS contains embedded SQLite migrations for engine storage.
//
//go:embed *.sql
var FS embed.FS
