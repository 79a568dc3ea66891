// Package db mirrors the loaded datasets into an in-memory DuckDB so they
// can be explored with SQL. Nothing is written to disk.
package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/joeblew999/plat-map/internal/dataset"
)

// DefaultLimit caps query results when the caller gives no limit.
const DefaultLimit = 1000

var (
	// ErrReadOnly rejects statements that are not queries.
	ErrReadOnly = errors.New("only read-only statements are allowed")
	// ErrMultipleStatements rejects input holding more than one statement.
	ErrMultipleStatements = errors.New("only a single statement is allowed")
)

// DB is the in-memory mirror.
type DB struct {
	conn    *sql.DB
	spatial bool
}

// Open creates an empty in-memory database. The spatial extension is loaded
// when available.
func Open(ctx context.Context) (*DB, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	d := &DB{conn: conn}
	if _, err := conn.ExecContext(ctx, "INSTALL spatial; LOAD spatial;"); err == nil {
		d.spatial = true
	}
	if err := d.createTables(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := d.lockDown(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// lockDown cuts the database off from the filesystem and network and
// freezes the configuration so queries cannot re-enable either.
func (d *DB) lockDown(ctx context.Context) error {
	for _, s := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := d.conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("locking duckdb: %w", err)
		}
	}
	return nil
}

// Spatial reports whether ST_* functions are available.
func (d *DB) Spatial() bool { return d.spatial }

// Close closes the database.
func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS districts (
			adcode INTEGER, name VARCHAR, parent_adcode INTEGER, level VARCHAR)`,
		`CREATE TABLE IF NOT EXISTS waters (
			idx INTEGER, name VARCHAR, type VARCHAR, wkt VARCHAR)`,
	}
	for _, s := range stmts {
		if _, err := d.conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

// SyncDistricts replaces the districts table.
func (d *DB) SyncDistricts(ctx context.Context, districts []dataset.District) error {
	return d.replace(ctx, "districts", "INSERT INTO districts VALUES (?, ?, ?, ?)", len(districts), func(stmt *sql.Stmt, i int) error {
		r := districts[i]
		_, err := stmt.ExecContext(ctx, r.Adcode, r.Name, r.ParentAdcode, r.Level)
		return err
	})
}

// SyncWaters replaces the waters table. Geometry is stored as WKT.
func (d *DB) SyncWaters(ctx context.Context, waters []dataset.WaterFeature) error {
	return d.replace(ctx, "waters", "INSERT INTO waters VALUES (?, ?, ?, ?)", len(waters), func(stmt *sql.Stmt, i int) error {
		w := waters[i]
		var text any
		if w.Coordinates != nil {
			text = wkt.MarshalString(w.Coordinates)
		}
		_, err := stmt.ExecContext(ctx, i, w.Name, w.Type, text)
		return err
	})
}

func (d *DB) replace(ctx context.Context, table, insert string, n int, row func(*sql.Stmt, int) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if err := row(stmt, i); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Tables lists the table names.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Result is a query result set.
type Result struct {
	Columns   []string         `json:"columns" doc:"Column names"`
	Rows      []map[string]any `json:"rows" doc:"Query results"`
	Count     int              `json:"count" doc:"Number of rows returned"`
	Truncated bool             `json:"truncated" doc:"Whether the row limit was hit"`
}

// readOnlyPrefixes are the statement keywords Query accepts.
var readOnlyPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "SUMMARIZE", "EXPLAIN", "FROM"}

func readOnly(q string) bool {
	head := strings.ToUpper(strings.TrimSpace(q))
	for _, p := range readOnlyPrefixes {
		if strings.HasPrefix(head, p) {
			return true
		}
	}
	return false
}

// Query runs a single read-only statement and returns at most limit rows.
func (d *DB) Query(ctx context.Context, q string, limit int) (Result, error) {
	if !readOnly(q) {
		return Result{}, ErrReadOnly
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	conn, err := d.conn.Conn(ctx)
	if err != nil {
		return Result{}, err
	}
	defer conn.Close()

	var res Result
	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		// Prepare (without a context) refuses batches; PrepareContext
		// would run every statement but the last.
		ds, err := dc.Prepare(q)
		if err != nil {
			if strings.Contains(err.Error(), "multi-statement") {
				return ErrMultipleStatements
			}
			return err
		}
		defer ds.Close()

		stmt := ds.(*duckdb.Stmt)
		kind, err := stmt.StatementType()
		if err != nil {
			return err
		}
		if kind != duckdb.STATEMENT_TYPE_SELECT && kind != duckdb.STATEMENT_TYPE_EXPLAIN {
			return ErrReadOnly
		}

		rows, err := stmt.QueryContext(ctx, nil)
		if err != nil {
			return err
		}
		defer rows.Close()
		res, err = collect(rows, limit)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func collect(rows driver.Rows, limit int) (Result, error) {
	columns := rows.Columns()
	res := Result{Columns: columns, Rows: []map[string]any{}}
	values := make([]driver.Value, len(columns))
	for {
		err := rows.Next(values)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		if len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	res.Count = len(res.Rows)
	return res, nil
}
