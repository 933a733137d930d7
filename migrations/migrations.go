// Package migrations embeds the SQL migration files applied on startup.
package migrations

import "embed"

// FS is the embedded migrations filesystem consumed by goose.
//
//go:embed *.sql
var FS embed.FS
