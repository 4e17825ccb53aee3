package callscribe

import _ "embed"

// SchemaSQL creates the transcript index on a fresh database.
//
//go:embed schema.sql
var SchemaSQL []byte
