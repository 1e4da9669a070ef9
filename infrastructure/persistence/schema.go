package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id BIGSERIAL PRIMARY KEY,
	platform TEXT NOT NULL,
	display_name TEXT NOT NULL,
	handle TEXT NOT NULL DEFAULT '',
	credential_encrypted TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	feed_id BIGINT,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	content_html TEXT NOT NULL DEFAULT '',
	content_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	article_id BIGINT NOT NULL REFERENCES articles(id),
	comment TEXT NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_due ON posts (status, scheduled_at);
CREATE TABLE IF NOT EXISTS deliveries (
	id BIGSERIAL PRIMARY KEY,
	post_id BIGINT NOT NULL REFERENCES posts(id),
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	status TEXT NOT NULL,
	external_id TEXT,
	error TEXT,
	sent_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (post_id, account_id)
);
CREATE INDEX IF NOT EXISTS idx_deliveries_account_sent ON deliveries (account_id, status, sent_at);
CREATE TABLE IF NOT EXISTS delivery_audit (
	id BIGSERIAL PRIMARY KEY,
	delivery_id BIGINT NOT NULL,
	post_id BIGINT NOT NULL,
	account_id BIGINT NOT NULL,
	platform TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform TEXT NOT NULL,
	display_name TEXT NOT NULL,
	handle TEXT NOT NULL DEFAULT '',
	credential_encrypted TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_id INTEGER,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	content_html TEXT NOT NULL DEFAULT '',
	content_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	article_id INTEGER NOT NULL REFERENCES articles(id),
	comment TEXT NOT NULL,
	scheduled_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_due ON posts (status, scheduled_at);
CREATE TABLE IF NOT EXISTS deliveries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL REFERENCES posts(id),
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	status TEXT NOT NULL,
	external_id TEXT,
	error TEXT,
	sent_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (post_id, account_id)
);
CREATE INDEX IF NOT EXISTS idx_deliveries_account_sent ON deliveries (account_id, status, sent_at);
CREATE TABLE IF NOT EXISTS delivery_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	delivery_id INTEGER NOT NULL,
	post_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	platform TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

// EnsureSchema creates missing tables and adds columns introduced after the first release.
// Safe to call at startup.
func EnsureSchema(db *sql.DB, driver string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ddl := sqliteSchema
	if driver == DriverPostgres {
		ddl = postgresSchema
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating schema failed: %w", err)
	}

	checks := []struct {
		table  string
		column string
		ddl    string
	}{
		{"deliveries", "attempt_count", "ALTER TABLE deliveries ADD COLUMN attempt_count INTEGER NOT NULL DEFAULT 0"},
	}
	for _, c := range checks {
		exists, err := columnExists(ctx, db, driver, c.table, c.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s failed: %w", c.table, c.column, err)
			}
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, driver, table, column string) (bool, error) {
	q := `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`
	if driver != DriverPostgres {
		q = `SELECT 1 FROM pragma_table_info($1) WHERE name=$2`
	}
	row := db.QueryRowContext(ctx, q, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
