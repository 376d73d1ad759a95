package progress

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

const createTable = `CREATE TABLE IF NOT EXISTS email_finder_progress (
	domain     TEXT NOT NULL,
	name       TEXT NOT NULL,
	email      TEXT,
	found      BOOLEAN NOT NULL,
	checked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (domain, name)
)`

// PostgresStore keeps one row per processed key. Rows are keyed by the normalized
// (domain, name) so a repeated Append is a no-op.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, pings and creates the progress table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required for the postgres progress backend")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create progress table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, name FROM email_finder_progress`)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	set := make(Set)
	for rows.Next() {
		var domain, name string
		if err := rows.Scan(&domain, &name); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		set.Add(Record{Domain: domain, Name: name}.Key())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read progress: %w", err)
	}
	return set, nil
}

func (s *PostgresStore) Append(ctx context.Context, r Record) error {
	k := r.Key()
	var email sql.NullString
	if r.Email != nil {
		email = sql.NullString{String: *r.Email, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_finder_progress (domain, name, email, found, checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (domain, name) DO NOTHING`,
		k.Domain, k.Name, email, r.Found, r.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
