// Package migrations embeds the SQL migrations of the core schema
package migrations

import "embed"

// FS holds the versioned up/down migration files
//
//go:embed *.sql
var FS embed.FS
