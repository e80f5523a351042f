// Package migrations embeds the versioned SQL schema so binaries and
// integration tests apply the same files without a path on disk.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
