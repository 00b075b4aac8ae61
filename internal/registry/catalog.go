package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/livetemplate/sandbox/internal/demo"
)

// Catalog is a database table of demos: one row per demo, with a unique
// "name" column and a "body" column holding a JSON or YAML definition.
type Catalog struct {
	kind  string // "sqlite" or "pg"
	db    *sql.DB
	table string
}

// OpenSQLiteCatalog opens a demo table in a SQLite database file
func OpenSQLiteCatalog(dbPath, table, siteDir string) (*Catalog, error) {
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("sqlite catalog: invalid table name %q", table)
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(siteDir, dbPath)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite catalog: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite catalog: failed to connect: %w", err)
	}
	return &Catalog{kind: "sqlite", db: db, table: table}, nil
}

// OpenPostgresCatalog opens a demo table in a PostgreSQL database
func OpenPostgresCatalog(dsn, table string) (*Catalog, error) {
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("pg catalog: invalid table name %q", table)
	}
	if dsn == "" {
		return nil, fmt.Errorf("pg catalog: database connection required (set dsn or DATABASE_URL env)")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg catalog: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg catalog: failed to connect: %w", err)
	}
	return &Catalog{kind: "pg", db: db, table: table}, nil
}

// placeholder returns the n-th (1-based) bind parameter for the driver
func (c *Catalog) placeholder(n int) string {
	if c.kind == "pg" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureSchema creates the demo table if it does not exist
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (name TEXT PRIMARY KEY, body TEXT NOT NULL)", c.table)
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s catalog: create table failed: %w", c.kind, err)
	}
	return nil
}

// Names lists the demos in the table
func (c *Catalog) Names(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s ORDER BY name", c.table)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s catalog: list failed: %w", c.kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s catalog: failed to scan row: %w", c.kind, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Get loads one demo by name
func (c *Catalog) Get(ctx context.Context, name string) (*demo.Definition, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE name = %s", c.table, c.placeholder(1))
	var body string
	err := c.db.QueryRowContext(ctx, query, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Name: name}
	}
	if err != nil {
		return nil, NewLoadError(name, "query", err)
	}

	def, err := decodeBody(body)
	if err != nil {
		return nil, &LoadError{Demo: name, Operation: "decode", Err: err}
	}
	return def, nil
}

// Put inserts or replaces a demo row
func (c *Catalog) Put(ctx context.Context, name, body string) error {
	if _, err := decodeBody(body); err != nil {
		return &LoadError{Demo: name, Operation: "decode", Err: err}
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (name, body) VALUES (%s, %s) ON CONFLICT (name) DO UPDATE SET body = excluded.body",
		c.table, c.placeholder(1), c.placeholder(2))
	if _, err := c.db.ExecContext(ctx, query, name, body); err != nil {
		return fmt.Errorf("%s catalog: write %q failed: %w", c.kind, name, err)
	}
	return nil
}

// Loader returns a Loader for one row of the catalog
func (c *Catalog) Loader(name string) Loader {
	return &catalogLoader{catalog: c, name: name}
}

// Close releases the database connection
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

type catalogLoader struct {
	catalog *Catalog
	name    string
}

func (l *catalogLoader) Name() string { return l.name }

func (l *catalogLoader) Load(ctx context.Context) (*demo.Definition, error) {
	return l.catalog.Get(ctx, l.name)
}

// Close is a no-op: the catalog owns the connection
func (l *catalogLoader) Close() error { return nil }

func decodeBody(body string) (*demo.Definition, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		return demo.ParseJSON([]byte(trimmed))
	}
	return demo.ParseYAML([]byte(trimmed))
}

// isValidIdentifier guards table names interpolated into SQL
func isValidIdentifier(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i, c := range name {
		if i == 0 {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_') {
				return false
			}
		} else {
			if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
				return false
			}
		}
	}
	return true
}
