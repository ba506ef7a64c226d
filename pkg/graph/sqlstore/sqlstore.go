// Package sqlstore implements graph.Driver on top of database/sql. Both the
// sqlite and postgres drivers wrap this store and differ only in how the
// connection is opened and in placeholder style.
//
// All timestamps are stored as unix nanoseconds so the same schema and
// queries run unchanged on both backends.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/omnii-ai/brainmem/pkg/graph"
)

// Dialect selects placeholder style and row-locking behavior.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Store implements graph.Driver over a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database handle and runs schema migration.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	s := &Store{db: db, dialect: dialect}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// migrate creates the graph tables if they don't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id                  TEXT PRIMARY KEY,
		user_id             TEXT NOT NULL,
		content             TEXT NOT NULL,
		ts                  BIGINT NOT NULL,
		channel             TEXT NOT NULL,
		source_identifier   TEXT NOT NULL,
		intent              TEXT NOT NULL DEFAULT '',
		sentiment           DOUBLE PRECISION NOT NULL DEFAULT 0,
		importance          DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_modified       BIGINT NOT NULL,
		modification_reason TEXT NOT NULL,
		metadata            TEXT NOT NULL DEFAULT '{}',
		action_context      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_user_ts ON messages(user_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_user_modified ON messages(user_id, last_modified);

	CREATE TABLE IF NOT EXISTS concepts (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		name            TEXT NOT NULL,
		name_key        TEXT NOT NULL,
		activation      DOUBLE PRECISION NOT NULL,
		mention_count   BIGINT NOT NULL DEFAULT 0,
		last_mentioned  BIGINT NOT NULL,
		semantic_weight DOUBLE PRECISION NOT NULL,
		UNIQUE(user_id, name_key)
	);

	CREATE TABLE IF NOT EXISTS memories (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		ts                 BIGINT NOT NULL,
		memory_type        TEXT NOT NULL,
		status             TEXT NOT NULL,
		consolidation_date BIGINT,
		episode_type       TEXT NOT NULL,
		channel            TEXT NOT NULL,
		source_identifier  TEXT NOT NULL DEFAULT '',
		origin_message_id  TEXT NOT NULL,
		summary            TEXT NOT NULL DEFAULT '',
		importance         DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_memories_user_type ON memories(user_id, memory_type, status, ts);

	CREATE TABLE IF NOT EXISTS tags (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		name           TEXT NOT NULL,
		name_key       TEXT NOT NULL,
		usage_count    BIGINT NOT NULL DEFAULT 1,
		last_used      BIGINT NOT NULL,
		channel_origin TEXT NOT NULL,
		category       TEXT NOT NULL,
		UNIQUE(user_id, name_key)
	);

	CREATE TABLE IF NOT EXISTS mentions (
		message_id TEXT NOT NULL,
		concept_id TEXT NOT NULL,
		strength   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY(message_id, concept_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mentions_concept ON mentions(concept_id);

	CREATE TABLE IF NOT EXISTS has_memory (
		message_id  TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		memory_id   TEXT NOT NULL,
		strength    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY(message_id, memory_type)
	);

	CREATE INDEX IF NOT EXISTS idx_has_memory_memory ON has_memory(memory_id);

	CREATE TABLE IF NOT EXISTS associations (
		from_concept      TEXT NOT NULL,
		to_concept        TEXT NOT NULL,
		strength          DOUBLE PRECISION NOT NULL,
		relationship_type TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(from_concept, to_concept)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders into $1..$n for postgres. Queries in this
// package are written in sqlite style.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// forUpdate appends a row-locking clause on postgres; sqlite serializes
// writers inside a transaction already.
func (s *Store) forUpdate(query string) string {
	if s.dialect == DialectPostgres {
		return query + " FOR UPDATE"
	}
	return query
}

// placeholders returns "?, ?, ..." of length n.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Stats returns graph size counters.
func (s *Store) Stats(ctx context.Context) (graph.Stats, error) {
	stats := graph.Stats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"messages", &stats.Messages},
		{"concepts", &stats.Concepts},
		{"memories", &stats.Memories},
		{"tags", &stats.Tags},
		{"associations", &stats.Associations},
	}

	for _, c := range counts {
		row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table)
		if err := row.Scan(c.dst); err != nil {
			return graph.Stats{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}

	return stats, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
