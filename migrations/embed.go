// Package migrations embeds the directory service schema.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup.
//
//go:embed *.sql
var FS embed.FS
