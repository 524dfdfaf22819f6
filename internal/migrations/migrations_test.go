package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_dashboard.up.sql":   {Data: []byte("CREATE TABLE dashboard_chart ();")},
		"sql/000002_dashboard.down.sql": {Data: []byte("DROP TABLE dashboard_chart;")},
		"sql/000001_sessions.up.sql":    {Data: []byte("CREATE TABLE session ();")},
		"sql/000001_sessions.down.sql":  {Data: []byte("DROP TABLE session;")},
		"sql/README.md":                 {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[0].Name != "sessions" || items[1].Version != 2 || items[1].Name != "dashboard" {
		t.Fatalf("unexpected migrations: %+v", items)
	}
	if !strings.HasPrefix(items[1].DownSQL, "DROP TABLE dashboard_chart") {
		t.Fatalf("dashboard down SQL = %q", items[1].DownSQL)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_sessions.up.sql": {Data: []byte("CREATE TABLE session ();")},
	}
	_, err := loadMigrations(fsys)
	if err == nil || !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("loadMigrations() error = %v, want missing down SQL", err)
	}
}

func TestLoadMigrationsRejectsConflictingNames(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_sessions.up.sql":  {Data: []byte("CREATE TABLE session ();")},
		"sql/000001_session.down.sql": {Data: []byte("DROP TABLE session;")},
	}
	if _, err := loadMigrations(fsys); err == nil || !strings.Contains(err.Error(), "two names") {
		t.Fatalf("loadMigrations() error = %v, want two names", err)
	}
}

func TestEmbeddedMigrationsAreNamed(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	want := []string{"sessions", "dashboard"}
	if len(items) != len(want) {
		t.Fatalf("len(items) = %d, want %d", len(items), len(want))
	}
	for i, name := range want {
		if items[i].Version != int64(i+1) || items[i].Name != name {
			t.Fatalf("items[%d] = %d %q, want %d %q", i, items[i].Version, items[i].Name, i+1, name)
		}
	}
}
