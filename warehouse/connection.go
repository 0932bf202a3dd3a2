// Package warehouse owns the single long-lived warehouse connection.
//
// The handle is opened once by the CLI, passed explicitly to the load
// manager and closed on every exit path. All work runs on one *sqlx.Conn so
// TEMP scratch tables stay visible for the whole load transaction.
package warehouse

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/civicload/errors"
)

// Driver names a supported database/sql driver
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverDuckDB   Driver = "duckdb"
	DriverPostgres Driver = "postgres"
)

// SQLiteBusyTimeoutMS bounds how long SQLite waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// ParseDriver validates a configured driver name
func ParseDriver(name string) (Driver, error) {
	switch d := Driver(strings.ToLower(name)); d {
	case DriverSQLite, DriverDuckDB, DriverPostgres:
		return d, nil
	default:
		return "", errors.WithHint(
			errors.NewInvalidRequestError("unsupported warehouse driver %q", name),
			"use sqlite3, duckdb or postgres",
		)
	}
}

// Warehouse is an open warehouse handle
type Warehouse struct {
	db     *sqlx.DB
	conn   *sqlx.Conn
	driver Driver
	log    *zap.SugaredLogger
}

// Open connects to the warehouse and pins one connection.
// If logger is provided, logs connection setup; otherwise operates silently.
func Open(ctx context.Context, driver Driver, dsn string, logger *zap.SugaredLogger) (*Warehouse, error) {
	d, err := ParseDriver(string(driver))
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debugw("Opening warehouse", "driver", d, "dsn", redactDSN(d, dsn))
	}

	db, err := sqlx.Open(string(d), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s warehouse", d)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to %s warehouse", d)
	}

	w, err := newWarehouse(ctx, db, d, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	if d == DriverSQLite {
		if err := w.configureSQLite(ctx, dsn); err != nil {
			w.Close()
			return nil, err
		}
	}

	if logger != nil {
		logger.Infow("Warehouse opened", "driver", d)
	}
	return w, nil
}

// FromDB wraps an existing *sql.DB, for tests and embedding
func FromDB(ctx context.Context, db *sql.DB, driver Driver, logger *zap.SugaredLogger) (*Warehouse, error) {
	return newWarehouse(ctx, sqlx.NewDb(db, string(driver)), driver, logger)
}

func newWarehouse(ctx context.Context, db *sqlx.DB, d Driver, logger *zap.SugaredLogger) (*Warehouse, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire warehouse connection")
	}
	return &Warehouse{db: db, conn: conn, driver: d, log: logger}, nil
}

func (w *Warehouse) configureSQLite(ctx context.Context, dsn string) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := w.conn.ExecContext(ctx, p); err != nil {
			return errors.Wrapf(err, "apply %q", p)
		}
	}
	return nil
}

// Close releases the pinned connection and the pool
func (w *Warehouse) Close() error {
	if w == nil {
		return nil
	}
	err := w.conn.Close()
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Driver returns the driver the warehouse was opened with
func (w *Warehouse) Driver() Driver { return w.driver }

// Conn returns the pinned connection
func (w *Warehouse) Conn() *sqlx.Conn { return w.conn }

// Rebind converts ?-placeholders to the driver's bind style
func (w *Warehouse) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(string(w.driver)), query)
}

// Begin starts a transaction on the pinned connection
func (w *Warehouse) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := w.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin warehouse transaction")
	}
	return tx, nil
}

// CountRows returns the number of rows in table
func (w *Warehouse) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := w.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+QuoteIdent(table)); err != nil {
		return 0, errors.Wrapf(err, "count rows in %s", table)
	}
	return n, nil
}

// TableExists reports whether table exists in the warehouse
func (w *Warehouse) TableExists(ctx context.Context, table string) (bool, error) {
	var q string
	switch w.driver {
	case DriverSQLite:
		q = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		q = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?"
	}
	var n int
	if err := w.conn.GetContext(ctx, &n, w.Rebind(q), table); err != nil {
		return false, errors.Wrapf(err, "look up table %s", table)
	}
	return n > 0, nil
}

// QuoteIdent quotes an identifier for all supported drivers
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// redactDSN hides credentials in network DSNs
func redactDSN(d Driver, dsn string) string {
	if d == DriverPostgres {
		return "<redacted>"
	}
	return dsn
}
