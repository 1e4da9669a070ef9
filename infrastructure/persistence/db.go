package persistence

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"echotree/infrastructure/configuration"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// NewDB opens the store selected by cfg.Driver and makes sure the schema exists.
func NewDB(cfg configuration.Database) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres, "postgresql", "psql":
		db, err = NewPostgreSQLDB(cfg.Psql)
		cfg.Driver = DriverPostgres
	case DriverSQLite, "sqlite", "":
		db, err = NewSQLiteDB(cfg.Sqlite.Path)
		cfg.Driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(db, cfg.Driver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgreSQLDB(cfg configuration.Db) (*sql.DB, error) {
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)

	u := &url.URL{Scheme: "postgres", Host: fmt.Sprintf("%s:%s", cfg.Host, cfg.Port), Path: "/" + cfg.Name}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	u.RawQuery = q.Encode()

	db, err := sql.Open(DriverPostgres, u.String())
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var memorySeq atomic.Int64

// NewSQLiteDB opens a single-node database file. ":memory:" is accepted for tests.
func NewSQLiteDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:echotree-mem-%d?mode=memory&cache=shared&_foreign_keys=on", memorySeq.Add(1))
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	}
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection also keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// TransactionError wraps a failure inside a multi-row mutation that was rolled back.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransactionError) Unwrap() error { return e.Err }

// dbTime normalizes timestamps so SQLite text comparison orders them correctly.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
