// Package postgres provides a PostgreSQL-backed graph driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx PostgreSQL driver as "pgx"

	"github.com/omnii-ai/brainmem/pkg/graph/sqlstore"
)

// Driver implements graph.Driver using PostgreSQL.
type Driver struct {
	*sqlstore.Store
}

// NewDriver creates a new PostgreSQL-backed graph driver.
// The connStr is a PostgreSQL connection string, e.g.
// "host=localhost port=5432 user=brainmem dbname=brainmem sslmode=disable"
// or a connection URI like "postgres://brainmem@localhost:5432/brainmem".
func NewDriver(ctx context.Context, connStr string) (*Driver, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the connection is reachable
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(db, sqlstore.DialectPostgres)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Store: store}, nil
}
