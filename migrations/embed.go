// Package migrations embeds the SQL schema for the Postgres persistent tier.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
