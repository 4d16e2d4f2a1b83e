package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dbFileName = "db.sqlite"

// Store wraps the SQLite mirror of the version catalog.
type Store struct {
	db *sql.DB
	// reader serves operator queries. It is a separate read-only handle for
	// on-disk databases and nil for in-memory ones.
	reader *sql.DB
}

// Open opens (or creates) the SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn, path string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		path = filepath.Join(dataDir, dbFileName)
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single writer connection; an in-memory database also lives and dies with it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if path != "" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting journal mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if path != "" {
		reader, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("opening read-only database: %w", err)
		}
		if err := reader.Ping(); err != nil {
			reader.Close()
			db.Close()
			return nil, fmt.Errorf("pinging read-only database: %w", err)
		}
		reader.SetMaxOpenConns(4)
		s.reader = reader
	}

	return s, nil
}

// OpenReadOnly opens an existing database in dataDir for inspection. It
// creates nothing and runs no migrations.
func OpenReadOnly(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, dbFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoDatabase
		}
		return nil, fmt.Errorf("checking database: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening read-only database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging read-only database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close closes the underlying database connections.
func (s *Store) Close() error {
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Catalog ---

// ReplaceCatalog swaps the contents of versions and versionTypes for c in a
// single transaction and records the sync time. Readers see either the old
// or the new snapshot, never a mix.
func (s *Store) ReplaceCatalog(ctx context.Context, c Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning catalog transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM versions"); err != nil {
		return fmt.Errorf("clearing versions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO versions VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing versions insert: %w", err)
	}
	for _, v := range c.Versions {
		if _, err := stmt.ExecContext(ctx, v.ID, v.GameVersionTypeID, v.Name, v.Slug); err != nil {
			stmt.Close()
			return fmt.Errorf("inserting version %d: %w", v.ID, err)
		}
	}
	stmt.Close()

	if _, err := tx.ExecContext(ctx, "DELETE FROM versionTypes"); err != nil {
		return fmt.Errorf("clearing version types: %w", err)
	}
	stmt, err = tx.PrepareContext(ctx, "INSERT INTO versionTypes VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing version types insert: %w", err)
	}
	for _, vt := range c.VersionTypes {
		if _, err := stmt.ExecContext(ctx, vt.ID, vt.Name, vt.Slug); err != nil {
			stmt.Close()
			return fmt.Errorf("inserting version type %d: %w", vt.ID, err)
		}
	}
	stmt.Close()

	fetchedAt := c.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_state (id, refreshed_at, versions, version_types) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET refreshed_at = excluded.refreshed_at,
			versions = excluded.versions, version_types = excluded.version_types`,
		fetchedAt.UTC().Format(time.RFC3339Nano), len(c.Versions), len(c.VersionTypes),
	); err != nil {
		return fmt.Errorf("recording sync state: %w", err)
	}

	return tx.Commit()
}

// LastSync returns the most recent successful catalog replacement.
func (s *Store) LastSync(ctx context.Context) (SyncState, error) {
	var st SyncState
	var refreshedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT refreshed_at, versions, version_types FROM sync_state WHERE id = 1",
	).Scan(&refreshedAt, &st.Versions, &st.VersionTypes)
	if err == sql.ErrNoRows {
		return SyncState{}, ErrNotFound
	}
	if err != nil {
		return SyncState{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, refreshedAt)
	if err != nil {
		return SyncState{}, fmt.Errorf("parsing refreshed_at: %w", err)
	}
	st.RefreshedAt = t
	return st, nil
}

// --- Operator queries ---

// Query runs operator-supplied SQL with writes disabled and materializes the
// result. Statement failures are returned as *SQLError.
func (s *Store) Query(ctx context.Context, text string) (*Rows, error) {
	db := s.reader
	if db == nil {
		db = s.db
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enabling query_only: %w", err)
	}
	defer conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF")

	rows, err := conn.QueryContext(ctx, text)
	if err != nil {
		return nil, sqlErr(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, sqlErr(ctx, err)
	}

	out := &Rows{Columns: cols, Values: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sqlErr(ctx, err)
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlErr(ctx, err)
	}
	return out, nil
}

// sqlErr classifies err as a statement failure unless the context ended.
func sqlErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &SQLError{Err: err}
}

// TableColumns lists the declared columns of table in ordinal order.
func (s *Store) TableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, ErrNotFound
	}
	return cols, nil
}
