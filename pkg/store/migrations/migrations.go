// Package migrations embeds the versioned Postgres schema SQL applied by
// "mindia migrate", mirroring the teacher's
// pkg/store/metadata/postgres/migrations package.
package migrations

import "embed"

// FS holds the embedded migration files, consumed by golang-migrate's
// iofs source driver.
//
//go:embed *.sql
var FS embed.FS
