// Package store persists BOM imports to SQLite or Postgres
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	plmxml "github.com/agentflare-ai/go-plmxml"
	"github.com/agentflare-ai/go-plmxml/bom"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	defaultDSN = "plmxml.db"
)

// Import describes one stored document view
type Import struct {
	ID         string
	Location   string
	ViewID     string
	Header     plmxml.Header
	Rows       int
	Warnings   int
	ImportedAt time.Time
}

// Store writes imports and their BOM rows through database/sql
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to dsn with driver ("sqlite" or "pgx") and creates the
// tables when missing.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	case "":
		driver = DriverSQLite
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if dsn == "" {
		if driver == DriverPostgres {
			return nil, fmt.Errorf("dsn required for %s", driver)
		}
		dsn = defaultDSN
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver, now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenFromEnv opens the store named by PLMXML_DB_DRIVER and PLMXML_DB_DSN
func OpenFromEnv(ctx context.Context) (*Store, error) {
	return Open(ctx, os.Getenv("PLMXML_DB_DRIVER"), os.Getenv("PLMXML_DB_DSN"))
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plmxml_imports (
			id TEXT PRIMARY KEY,
			location TEXT NOT NULL,
			view_id TEXT NOT NULL,
			schema_version TEXT NOT NULL,
			author TEXT NOT NULL,
			doc_date TEXT NOT NULL,
			doc_time TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			imported_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS plmxml_bom_rows (
			import_id TEXT NOT NULL REFERENCES plmxml_imports(id),
			position INTEGER NOT NULL,
			level INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			item_type TEXT NOT NULL,
			revision TEXT NOT NULL,
			quantity TEXT NOT NULL,
			attributes TEXT NOT NULL,
			datasets TEXT NOT NULL,
			occurrence_id TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			PRIMARY KEY (import_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Save stores view of res as a new import. A result without views stores
// an import with no rows.
func (s *Store) Save(ctx context.Context, location string, res *plmxml.Result, view int) (Import, error) {
	if res == nil {
		return Import{}, fmt.Errorf("nil result")
	}
	imp := Import{
		ID:         uuid.NewString(),
		Location:   location,
		Warnings:   len(res.Warnings()),
		ImportedAt: s.now().UTC().Truncate(time.Second),
	}
	imp.Header, _ = res.Header()

	var rows []bom.Row
	if len(res.Views) > 0 {
		if view < 0 || view >= len(res.Views) {
			return Import{}, fmt.Errorf("view %d out of range (%d views)", view, len(res.Views))
		}
		imp.ViewID = res.Views[view].ProductView.ID
		rows = bom.Rows(res, view)
	}
	imp.Rows = len(rows)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Import{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO plmxml_imports
		(id, location, view_id, schema_version, author, doc_date, doc_time, row_count, warning_count, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		imp.ID, imp.Location, imp.ViewID, imp.Header.SchemaVersion, imp.Header.Author, imp.Header.Date, imp.Header.Time,
		imp.Rows, imp.Warnings, imp.ImportedAt.Format(time.RFC3339)); err != nil {
		return Import{}, fmt.Errorf("insert import: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO plmxml_bom_rows
		(import_id, position, level, kind, name, item_type, revision, quantity, attributes, datasets, occurrence_id, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return Import{}, fmt.Errorf("prepare row insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, imp.ID, i, r.Level, r.Kind, r.Name, r.ItemType, r.Revision, r.Quantity,
			r.Attributes, r.Datasets, r.OccurrenceID, r.ParentID); err != nil {
			return Import{}, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Import{}, fmt.Errorf("commit: %w", err)
	}
	return imp, nil
}

// Imports lists stored imports, oldest first
func (s *Store) Imports(ctx context.Context) ([]Import, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, location, view_id, schema_version, author, doc_date, doc_time,
		row_count, warning_count, imported_at FROM plmxml_imports ORDER BY imported_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select imports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Import
	for rows.Next() {
		var imp Import
		var importedAt string
		if err := rows.Scan(&imp.ID, &imp.Location, &imp.ViewID, &imp.Header.SchemaVersion, &imp.Header.Author,
			&imp.Header.Date, &imp.Header.Time, &imp.Rows, &imp.Warnings, &importedAt); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		if imp.ImportedAt, err = time.Parse(time.RFC3339, importedAt); err != nil {
			return nil, fmt.Errorf("import %s: bad timestamp %q", imp.ID, importedAt)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// LoadRows returns the rows of an import in their stored order
func (s *Store) LoadRows(ctx context.Context, importID string) ([]bom.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT level, kind, name, item_type, revision, quantity, attributes,
		datasets, occurrence_id, parent_id FROM plmxml_bom_rows WHERE import_id = ? ORDER BY position`), importID)
	if err != nil {
		return nil, fmt.Errorf("select rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []bom.Row
	for rows.Next() {
		var r bom.Row
		if err := rows.Scan(&r.Level, &r.Kind, &r.Name, &r.ItemType, &r.Revision, &r.Quantity, &r.Attributes,
			&r.Datasets, &r.OccurrenceID, &r.ParentID); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for Postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
