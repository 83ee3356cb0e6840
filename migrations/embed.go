// Package migrations embeds the SQL schema so the binary can migrate the
// run-history database without shipping the files alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
