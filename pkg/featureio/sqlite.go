package featureio

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
)

// RunsTable records every committed run.
const RunsTable = "spatialbin_runs"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore writes each run to a table of a SQLite database.
//
// A run is one transaction: the output table is dropped and recreated inside
// it, so a rolled-back run leaves the database exactly as before, including
// a table left by an earlier run. Geometry is stored as GeoJSON text.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens (or creates) the database at path for output to table.
func OpenSQLite(path, table string) (*SQLiteStore, error) {
	if !tableName.MatchString(table) || table == RunsTable {
		return nil, errors.Newf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// One writer at a time; concurrent runs queue on the connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + RunsTable + ` (
		run_id TEXT PRIMARY KEY,
		table_name TEXT,
		crs TEXT,
		bins INTEGER,
		created_at TEXT
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create runs table")
	}

	return &SQLiteStore{db: db, table: table}, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Table returns the output table name.
func (s *SQLiteStore) Table() string { return s.table }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Begin starts the run transaction and recreates the output table in it.
func (s *SQLiteStore) Begin(schema binning.Schema) (binning.Sink, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}

	ddl := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table),
		fmt.Sprintf(`CREATE TABLE %s (
			%s INTEGER PRIMARY KEY,
			%s REAL NOT NULL,
			"%s" INTEGER NOT NULL,
			run_id TEXT NOT NULL,
			geometry TEXT NOT NULL
		)`, s.table, binning.FieldID, binning.FieldAggregate, binning.FieldCount),
	}
	for _, q := range ddl {
		if _, err := tx.Exec(q); err != nil {
			tx.Rollback()
			return nil, errors.Wrapf(err, "prepare table %s", s.table)
		}
	}

	insert, err := tx.Prepare(fmt.Sprintf(
		`INSERT INTO %s (%s, %s, "%s", run_id, geometry) VALUES (?, ?, ?, ?, ?)`,
		s.table, binning.FieldID, binning.FieldAggregate, binning.FieldCount))
	if err != nil {
		tx.Rollback()
		return nil, errors.Wrap(err, "prepare insert")
	}

	return &sqliteSink{store: s, schema: schema, tx: tx, insert: insert}, nil
}

type sqliteSink struct {
	store    *SQLiteStore
	schema   binning.Schema
	tx       *sql.Tx
	insert   *sql.Stmt
	written  int
	finished bool
}

func (k *sqliteSink) Write(f binning.OutputFeature) error {
	if k.finished {
		return errors.New("write to finished sink")
	}
	geometry, err := FromPolygon(f.Geometry).MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encode geometry")
	}
	if _, err := k.insert.Exec(f.ID, f.Aggregate, f.Count, k.schema.RunID, string(geometry)); err != nil {
		return errors.Wrapf(err, "insert bin %d", f.ID)
	}
	k.written++
	return nil
}

func (k *sqliteSink) Rollback(error) error {
	if k.finished {
		return nil
	}
	k.finished = true
	k.insert.Close()
	if err := k.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errors.Wrap(err, "rollback transaction")
	}
	return nil
}

// Close records the run and commits.
func (k *sqliteSink) Close() error {
	if k.finished {
		return nil
	}
	k.finished = true
	k.insert.Close()

	if _, err := k.tx.Exec(
		`INSERT INTO `+RunsTable+` (run_id, table_name, crs, bins, created_at) VALUES (?, ?, ?, ?, ?)`,
		k.schema.RunID, k.store.table, k.schema.CRS, k.written, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		k.tx.Rollback()
		return errors.Wrap(err, "record run")
	}
	if err := k.tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
