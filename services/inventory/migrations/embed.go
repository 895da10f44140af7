// Package migrations embeds the SQL migration files for the inventory
// service database schema.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
