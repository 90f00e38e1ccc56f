package migrations

import "embed"

// Files holds the goose migrations for accounts, sessions, recoveries and profiles.
//
//go:embed *.sql
var Files embed.FS
