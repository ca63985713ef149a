// Package migrations embeds the schema migrations of every driver that the
// engine can create tables for. Each driver has its own directory named after
// its config driver constant.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS
