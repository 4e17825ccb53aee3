package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/snarg/callscribe/internal/database"
)

func main() {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "recent" {
		n := 20
		if len(os.Args) > 2 {
			if v, err := strconv.Atoi(os.Args[2]); err == nil && v > 0 {
				n = v
			}
		}
		listRecent(ctx, pool, n)
		return
	}

	if len(os.Args) > 2 && os.Args[1] == "search" {
		searchTranscripts(ctx, pool, strings.Join(os.Args[2:], " "))
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "missing" {
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		fixMissingInputs(ctx, pool, dryRun)
		return
	}

	// Default: index summary
	var total, events int64
	var avgDur *float64
	pool.QueryRow(ctx, "SELECT count(*), coalesce(sum(event_count), 0), avg(duration_s) FROM call_transcripts").
		Scan(&total, &events, &avgDur)
	fmt.Println("Transcript index")
	fmt.Println("─────────────────────────────────")
	fmt.Printf("%-25s %d\n", "transcripts", total)
	fmt.Printf("%-25s %d\n", "event lines", events)
	if avgDur != nil {
		fmt.Printf("%-25s %.1fs\n", "avg call duration", *avgDur)
	}

	printGrouped(ctx, pool, "other_source", "Name Source")
	printGrouped(ctx, pool, "coalesce(provider, '(segments)')", "Provider")
}

// printGrouped prints a count per distinct value of expr.
func printGrouped(ctx context.Context, pool *pgxpool.Pool, expr, title string) {
	fmt.Printf("\n── %s ──\n", title)
	rows, err := pool.Query(ctx, "SELECT "+expr+", count(*) FROM call_transcripts GROUP BY 1 ORDER BY 2 DESC")
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		var count int64
		rows.Scan(&v, &count)
		fmt.Printf("  %-22s %d\n", v, count)
	}
}

func listRecent(ctx context.Context, pool *pgxpool.Pool, n int) {
	rows, err := pool.Query(ctx, `
		SELECT id::text, input_name, other_name, other_source, line_count, created_at
		FROM call_transcripts
		ORDER BY created_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		fmt.Printf("Error listing transcripts: %v\n", err)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var id, name, other, source string
		var lines int
		var created time.Time
		rows.Scan(&id, &name, &other, &source, &lines, &created)
		fmt.Printf("%s  %s  %-40s other=%q (%s) lines=%d\n",
			created.Local().Format("2006-01-02 15:04"), id[:8], name, other, source, lines)
	}
}

func searchTranscripts(ctx context.Context, pool *pgxpool.Pool, query string) {
	rows, err := pool.Query(ctx, `
		SELECT input_name,
		       ts_rank(search_vector, q) AS rank,
		       ts_headline('english', body, q, 'MaxFragments=2, MaxWords=12, MinWords=4')
		FROM call_transcripts, `+database.TSQuery("$1")+` q
		WHERE search_vector @@ q
		ORDER BY rank DESC
		LIMIT 20
	`, query)
	if err != nil {
		fmt.Printf("Error searching: %v\n", err)
		return
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		found = true
		var name, headline string
		var rank float32
		rows.Scan(&name, &rank, &headline)
		fmt.Printf("%.3f  %s\n       %s\n", rank, name, strings.ReplaceAll(headline, "\n", " / "))
	}
	if !found {
		fmt.Println("(no matches)")
	}
}
