// Package db embeds the SQL migrations applied at startup and by estatectl.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
