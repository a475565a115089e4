// Package postgres connects to the PostgreSQL database holding translation
// units and, optionally, analytics snapshots.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/pkg/resilience"
)

// startup covers a database container that comes up after the service.
var startup = resilience.Policy{Attempts: 5, Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// Open returns a pool that has answered at least one ping. The caller owns
// the pool and must close it.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = startup.Do(ctx, "postgres-ping", func(int) error {
		_, err := resilience.CallWithin(ctx, 5*time.Second, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, db.PingContext(ctx)
		})
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s:%d/%s unreachable: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}
	slog.Info("postgres connected", "host", cfg.Host, "database", cfg.Database, "max_open", cfg.MaxOpenConns)
	return db, nil
}
