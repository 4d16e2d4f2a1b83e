package web

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/versionsql/internal/storage"
)

func TestSchemaMatchesDatabase(t *testing.T) {
	s, err := LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	var names []string
	for _, table := range s.Tables {
		names = append(names, table.Name)
		cols, err := store.TableColumns(context.Background(), table.Name)
		if err != nil {
			t.Fatalf("table %s: %v", table.Name, err)
		}
		if len(cols) != len(table.Columns) {
			t.Fatalf("table %s: database has %d columns, reference has %d", table.Name, len(cols), len(table.Columns))
		}
		for i, c := range cols {
			doc := table.Columns[i]
			if c.Name != doc.Name || !strings.EqualFold(c.Type, doc.Type) {
				t.Errorf("table %s column %d: database %s %s, reference %s %s",
					table.Name, i, c.Name, c.Type, doc.Name, doc.Type)
			}
		}
	}
	if got := strings.Join(names, ","); got != "versions,versionTypes" {
		t.Fatalf("tables = %s, want versions,versionTypes", got)
	}
}

func TestParseSchemaRejectsIncompleteTables(t *testing.T) {
	cases := map[string]string{
		"no name":    "tables:\n  - columns:\n      - name: id\n        type: INT\n",
		"no columns": "tables:\n  - name: versions\n",
		"bad yaml":   "tables: [",
	}
	for name, in := range cases {
		if _, err := parseSchema([]byte(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestConsolePageRenders(t *testing.T) {
	s, err := LoadSchema()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := ConsolePage(s).Render(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	page := buf.String()
	if !strings.HasPrefix(page, "<!doctype html><html lang=\"en\">") {
		t.Errorf("page does not start with a doctype: %.60q", page)
	}

	for _, want := range []string{
		"<!doctype html>",
		`<textarea id="query"`,
		`<button id="execute" type="button">Execute</button>`,
		`<pre id="result"></pre>`,
		`<ul id="history"></ul>`,
		`fetch("../query.json", { method: "POST", body: text })`,
		"JSON.stringify(value, null, 2)",
		"button.disabled = false",
		"<code>gameVersionTypeID</code>",
		"<code>versionTypes</code>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func newTestAssets(t *testing.T, mod time.Time) *Assets {
	t.Helper()
	s, err := LoadSchema()
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAssets(s, mod)
	if err != nil {
		t.Fatalf("NewAssets: %v", err)
	}
	return a
}

func TestAssetsServeIndex(t *testing.T) {
	mod := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	a := newTestAssets(t, mod)

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, IndexPath, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if lm := rec.Header().Get("Last-Modified"); lm != mod.Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q", lm)
	}

	req := httptest.NewRequest(http.MethodGet, IndexPath, nil)
	req.Header.Set("If-Modified-Since", mod.Format(http.TimeFormat))
	rec = httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d, want 304", rec.Code)
	}
}

func TestAssetsServeStylesheet(t *testing.T) {
	a := newTestAssets(t, time.Now())

	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/console.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestAssetsUnknownIsNotFoundPage(t *testing.T) {
	a := newTestAssets(t, time.Now())

	for _, p := range []string{"/static/", "/static/missing.js", "/static/assets/console.js"} {
		rec := httptest.NewRecorder()
		a.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", p, rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "404 Not Found") || !strings.Contains(string(body), p) {
			t.Errorf("%s: unexpected body %q", p, body)
		}
		if !strings.HasPrefix(string(body), "<!doctype html>") {
			t.Errorf("%s: body does not start with a doctype: %q", p, body)
		}
	}
}
