package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fixMissingInputs finds index rows whose recording no longer exists on
// disk. With dryRun=false those rows are deleted.
func fixMissingInputs(ctx context.Context, pool *pgxpool.Pool, dryRun bool) {
	rows, err := pool.Query(ctx, `SELECT id::text, input_path FROM call_transcripts ORDER BY created_at`)
	if err != nil {
		fmt.Printf("Error listing transcripts: %v\n", err)
		return
	}

	type orphan struct {
		id   string
		path string
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.id, &o.path); err != nil {
			fmt.Printf("Error scanning row: %v\n", err)
			rows.Close()
			return
		}
		if _, err := os.Stat(o.path); errors.Is(err, fs.ErrNotExist) {
			orphans = append(orphans, o)
		}
	}
	rows.Close()

	fmt.Printf("Found %d transcripts whose recording is gone\n", len(orphans))
	for _, o := range orphans {
		fmt.Printf("  %s  %s\n", o.id, o.path)
	}
	if len(orphans) == 0 {
		return
	}
	if dryRun {
		fmt.Println("\nDry run. Re-run with 'missing apply' to delete these rows.")
		return
	}

	deleted := 0
	for _, o := range orphans {
		tag, err := pool.Exec(ctx, `DELETE FROM call_transcripts WHERE id::text = $1`, o.id)
		if err != nil {
			fmt.Printf("Error deleting %s: %v\n", o.id, err)
			continue
		}
		deleted += int(tag.RowsAffected())
	}
	fmt.Printf("Deleted %d rows\n", deleted)
}
