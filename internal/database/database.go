package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB is the optional transcript index. Nothing on the conversion path
// depends on it: the transcript file is written before any row is.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

const pingTimeout = 10 * time.Second

// Connect opens a pool sized for the worker count (one writer each) plus a
// few connections for API readers.
func Connect(ctx context.Context, databaseURL string, workers int, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	cfg.MaxConns = int32(max(workers, 1) + 4)
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "callscribe"
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", maskDSN(databaseURL), err)
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("transcript index connected")

	return &DB{Pool: pool, log: log}, nil
}

// Init loads the schema on a fresh database and applies pending migrations.
func (db *DB) Init(ctx context.Context, schemaSQL []byte) error {
	if err := db.InitSchema(ctx, schemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return db.Migrate(ctx)
}

func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// maskDSN hides the password so the URL can be logged.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (db *DB) Close() {
	db.log.Info().Msg("closing transcript index")
	db.Pool.Close()
}
