package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCatalog() Catalog {
	return Catalog{
		Versions: []Version{
			{ID: 1, GameVersionTypeID: 10, Name: "1.20.1", Slug: "1-20-1"},
			{ID: 2, GameVersionTypeID: 10, Name: "1.20.2", Slug: "1-20-2"},
			{ID: 3, GameVersionTypeID: 11, Name: "Forge", Slug: "forge"},
		},
		VersionTypes: []VersionType{
			{ID: 10, Name: "Minecraft 1.20", Slug: "minecraft-1-20"},
			{ID: 11, Name: "Modloader", Slug: "modloader"},
		},
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestCatalogTablesExist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cols, err := s.TableColumns(ctx, "versions")
	if err != nil {
		t.Fatalf("TableColumns(versions): %v", err)
	}
	want := []string{"id", "gameVersionTypeID", "name", "slug"}
	if len(cols) != len(want) {
		t.Fatalf("versions columns = %+v", cols)
	}
	for i, c := range cols {
		if c.Name != want[i] {
			t.Errorf("column %d = %q, want %q", i, c.Name, want[i])
		}
	}

	if _, err := s.TableColumns(ctx, "versionTypes"); err != nil {
		t.Fatalf("TableColumns(versionTypes): %v", err)
	}
	if _, err := s.TableColumns(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TableColumns(missing) err = %v, want ErrNotFound", err)
	}
}

func TestReplaceCatalog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LastSync(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastSync before load err = %v, want ErrNotFound", err)
	}

	c := sampleCatalog()
	if err := s.ReplaceCatalog(ctx, c); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}

	st, err := s.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if st.Versions != 3 || st.VersionTypes != 2 {
		t.Errorf("SyncState counts = %d/%d, want 3/2", st.Versions, st.VersionTypes)
	}
	if !st.RefreshedAt.Equal(c.FetchedAt) {
		t.Errorf("RefreshedAt = %v, want %v", st.RefreshedAt, c.FetchedAt)
	}

	// Second load replaces, never appends.
	c.Versions = c.Versions[:1]
	c.VersionTypes = nil
	if err := s.ReplaceCatalog(ctx, c); err != nil {
		t.Fatalf("second ReplaceCatalog: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM versions").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("versions count = %d, want 1", n)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM versionTypes").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("versionTypes count = %d, want 0", n)
	}
}

func TestReplaceCatalogRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.ReplaceCatalog(ctx, sampleCatalog()); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}

	bad := sampleCatalog()
	bad.Versions = append(bad.Versions, Version{ID: 1, Name: "duplicate"})
	if err := s.ReplaceCatalog(ctx, bad); err == nil {
		t.Fatal("expected primary key violation")
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM versions").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("versions count after failed replace = %d, want 3", n)
	}
}

func TestQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.ReplaceCatalog(ctx, sampleCatalog()); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}

	rows, err := s.Query(ctx, "SELECT id, name FROM versions WHERE gameVersionTypeID = 10 ORDER BY id")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows.Columns) != 2 || rows.Columns[0] != "id" || rows.Columns[1] != "name" {
		t.Errorf("Columns = %v", rows.Columns)
	}
	if len(rows.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(rows.Values))
	}
	if rows.Values[0][0] != int64(1) || rows.Values[0][1] != "1.20.1" {
		t.Errorf("first row = %v", rows.Values[0])
	}
}

func TestQueryEmptyResult(t *testing.T) {
	s := openTestStore(t)

	rows, err := s.Query(context.Background(), "SELECT * FROM versions")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rows.Values == nil || len(rows.Values) != 0 {
		t.Errorf("Values = %#v, want empty non-nil", rows.Values)
	}
}

func TestQueryRejectsWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Query(ctx, "DELETE FROM versions")
	var se *SQLError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SQLError", err)
	}

	// The writer connection is usable again afterwards.
	if err := s.ReplaceCatalog(ctx, sampleCatalog()); err != nil {
		t.Fatalf("ReplaceCatalog after rejected write: %v", err)
	}
}

func TestQuerySyntaxError(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Query(context.Background(), "SELEC * FROM versions")
	var se *SQLError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SQLError", err)
	}
}

func TestQueryOnDiskUsesReader(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if s.reader == nil {
		t.Fatal("expected read-only handle for on-disk store")
	}
	if err := s.ReplaceCatalog(ctx, sampleCatalog()); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}

	rows, err := s.Query(ctx, "SELECT COUNT(*) AS n FROM versionTypes")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if rows.Values[0][0] != int64(2) {
		t.Errorf("count = %v, want 2", rows.Values[0][0])
	}

	if _, err := s.Query(ctx, "INSERT INTO versionTypes VALUES (99, 'x', 'x')"); err == nil {
		t.Error("expected write through reader to fail")
	}
}

func TestOpenReadOnlyMissingDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	if _, err := OpenReadOnly(dir); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("OpenReadOnly err = %v, want ErrNoDatabase", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("data directory was created (stat err = %v)", err)
	}
}

func TestOpenReadOnlyReadsSyncState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.ReplaceCatalog(ctx, sampleCatalog()); err != nil {
		t.Fatalf("ReplaceCatalog: %v", err)
	}
	s.Close()

	ro, err := OpenReadOnly(dir)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	st, err := ro.LastSync(ctx)
	if err != nil {
		t.Fatalf("LastSync: %v", err)
	}
	if st.Versions != 3 || st.VersionTypes != 2 {
		t.Errorf("LastSync = %+v, want 3 versions and 2 types", st)
	}
	if err := ro.ReplaceCatalog(ctx, sampleCatalog()); err == nil {
		t.Error("ReplaceCatalog on a read-only store succeeded")
	}
}
