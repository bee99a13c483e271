// Package sqldocs embeds the SQL schema shipped with the durable stores.
package sqldocs

import _ "embed"

// SQLite contains the SQLite schema.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres schema.
//
//go:embed postgres.sql
var Postgres string
