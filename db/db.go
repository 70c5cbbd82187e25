package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/quill/activitypub"
	"github.com/deemkeen/quill/domain"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	maxBusyRetries = 5
)

// Connection defaults for the sqlite driver, applied to every pooled connection
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"temp_store(MEMORY)",
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. It runs either on the pool or inside a
// transaction, so DB and Tx share the same methods.
type queries struct {
	q      querier
	driver string
}

// DB is the database struct.
type DB struct {
	*queries
	db *sql.DB
}

// Tx is one open transaction.
type Tx struct {
	*queries
	tx *sql.Tx
}

// Open connects to sqlite (dsn is a file path) or postgres (dsn is a
// connection string) and runs the migrations.
func Open(driver string, dsn string) (*DB, error) {
	switch driver {
	case DriverSqlite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	database := &DB{queries: &queries{q: conn, driver: driver}, db: conn}
	if err := database.RunMigrations(); err != nil {
		conn.Close()
		return nil, err
	}
	log.Infof("Database initialized (%s, max 25 connections)", driver)
	return database, nil
}

func sqliteDSN(path string) string {
	var b strings.Builder
	if !strings.HasPrefix(path, "file:") {
		b.WriteString("file:")
	}
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	return b.String()
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Federation exposes the database as the store of the federation engine.
func (db *DB) Federation() activitypub.Store {
	return federationStore{db: db}
}

type federationStore struct {
	db *DB
}

func (s federationStore) WithTx(ctx context.Context, fn func(tx activitypub.Tx) error) error {
	return s.db.WithTx(ctx, func(tx *Tx) error { return fn(tx) })
}

// WithTx runs fn within a transaction and commits if fn succeeds. A sqlite
// busy error restarts the whole transaction a few times.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = db.runTx(ctx, fn)
		if !isBusy(err) {
			return err
		}
		log.Debugf("Database busy, retrying transaction (attempt %d)", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (db *DB) runTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	tx := &Tx{queries: &queries{q: sqlTx, driver: db.driver}, tx: sqlTx}

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (q *queries) rebind(query string) string {
	if q.driver != DriverPostgres {
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

func (q *queries) exec(ctx context.Context, query string, args ...any) error {
	_, err := q.q.ExecContext(ctx, q.rebind(query), args...)
	return mapErr(err)
}

// execAffected fails with domain.ErrNotFound when no row changed.
func (q *queries) execAffected(ctx context.Context, query string, args ...any) error {
	res, err := q.q.ExecContext(ctx, q.rebind(query), args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := q.q.QueryContext(ctx, q.rebind(query), args...)
	return rows, mapErr(err)
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

// mapErr translates driver errors into the domain sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		if code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code == sqlitelib.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE")) {
			return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
		}
	}
	var perr *pq.Error
	if errors.As(err, &perr) && perr.Code == "23505" {
		return fmt.Errorf("%w: %v", domain.ErrDuplicate, err)
	}
	return err
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code() & 0xff
	return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
}
