package database

import (
	"context"
	"fmt"
)

// schemaLockID is the advisory lock held while the schema is created, so two
// daemons starting against one database do not race.
const schemaLockID int64 = 0x63616c6c736372 // "callscr"

const schemaPresentSQL = `SELECT to_regclass('public.call_transcripts') IS NOT NULL`

// InitSchema creates the transcript index from schemaSQL unless the
// call_transcripts table already exists. Later changes go through Migrate.
func (db *DB) InitSchema(ctx context.Context, schemaSQL []byte) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("schema lock: %w", err)
	}

	var present bool
	if err := tx.QueryRow(ctx, schemaPresentSQL).Scan(&present); err != nil {
		return err
	}
	if present {
		db.log.Debug().Msg("transcript index schema present")
		return nil
	}

	if _, err := tx.Exec(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema.sql: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	db.log.Info().Msg("transcript index schema created")
	return nil
}
