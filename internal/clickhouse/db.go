package clickhouse

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	// Metadata table migrations
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/clickview/clickview/internal/config"
)

// DB wraps the ClickHouse connection pool
type DB struct {
	Conn driver.Conn
}

// NewDB opens a bounded connection pool against ClickHouse, verifies
// connectivity, and runs metadata migrations when a migrations path is
// configured. Callers exceeding the pool size queue for a connection
// instead of failing immediately.
func NewDB(cfg config.ClickHouseConfig) (*DB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	// Run migrations
	if cfg.MigrationsPath != "" {
		dsn := fmt.Sprintf("clickhouse://%s:%d?username=%s&password=%s&database=%s&x-multi-statement=true",
			cfg.Host, cfg.Port, url.QueryEscape(cfg.User), url.QueryEscape(cfg.Password), url.QueryEscape(cfg.Database))
		m, err := migrate.New("file://"+cfg.MigrationsPath, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DB{Conn: conn}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.Conn.Close()
}
