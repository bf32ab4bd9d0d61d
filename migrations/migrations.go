// Package migrations embeds the curator's SQL migrations for goose.
// Files are named YYYYMMDDHHMMSS_description.sql and applied in order
// on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
