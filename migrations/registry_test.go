package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	tokenapi "github.com/goliatone/go-tokenapi"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ScansBothDialects(t *testing.T) {
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	for _, source := range sources {
		switch source.Dialect {
		case DialectPostgres:
			if source.Path != "data/sql/migrations" {
				t.Fatalf("unexpected postgres path %q", source.Path)
			}
		case DialectSQLite:
			if source.Path != "data/sql/migrations/sqlite" {
				t.Fatalf("unexpected sqlite path %q", source.Path)
			}
		default:
			t.Fatalf("unexpected dialect %q", source.Dialect)
		}
		if !source.Has(CredentialsMigration) {
			t.Fatalf("expected %s tree to carry %s, got %v", source.Dialect, CredentialsMigration, source.Versions)
		}
	}
}

func TestSources_RejectsTreeWithoutMigrations(t *testing.T) {
	empty := fstest.MapFS{"README.md": &fstest.MapFile{Data: []byte("nothing here")}}
	if _, err := Sources(empty); err == nil {
		t.Fatalf("expected error for tree without migrations")
	}
}

func TestSources_RejectsUnpairedMigration(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/00001_tokenapi_credentials.up.sql":        &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/00001_tokenapi_credentials.down.sql":      &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00001_tokenapi_credentials.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	_, err := Sources(tree)
	if err == nil || !strings.Contains(err.Error(), "no down file") {
		t.Fatalf("expected missing down file error, got %v", err)
	}
}

func TestRegister_RequiresCredentialMigration(t *testing.T) {
	tree := fstest.MapFS{
		"data/sql/migrations/00002_audit.up.sql":          &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/00002_audit.down.sql":        &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00002_audit.up.sql":   &fstest.MapFile{Data: []byte("SELECT 1;")},
		"data/sql/migrations/sqlite/00002_audit.down.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	sources, err := Sources(tree)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}

	called := 0
	_, err = Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		called++
		return nil
	}, WithSources(sources...))
	if err == nil || !strings.Contains(err.Error(), CredentialsMigration) {
		t.Fatalf("expected missing credential migration error, got %v", err)
	}
	if called != 0 {
		t.Fatalf("expected nothing to be registered, got %d calls", called)
	}
}

func TestRegister_RequiredMigrationsAreExtended(t *testing.T) {
	reg, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return nil
	}, WithRequiredMigrations("00009_missing"), WithValidationTargets(DialectSQLite))
	if err == nil {
		t.Fatalf("expected missing 00009_missing error")
	}
	if len(reg.Required) != 2 || reg.Required[0] != CredentialsMigration {
		t.Fatalf("expected credential migration to stay required, got %v", reg.Required)
	}
}

func TestRegister_RejectsUnknownDialect(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return nil
	}, WithValidationTargets("mysql"))
	if err == nil {
		t.Fatalf("expected unknown dialect error")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
}

func TestRegister_PropagatesRegisterFailure(t *testing.T) {
	sentinel := errors.New("register failed")
	reg, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return sentinel
	}, WithDialectSourceLabel("custom"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected register failure, got %v", err)
	}
	if reg.SourceLabel != "custom" {
		t.Fatalf("expected custom source label, got %q", reg.SourceLabel)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestCredentialMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := tokenapi.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_tokenapi_credentials.up.sql",
		"data/sql/migrations/00001_tokenapi_credentials.down.sql",
		"data/sql/migrations/sqlite/00001_tokenapi_credentials.up.sql",
		"data/sql/migrations/sqlite/00001_tokenapi_credentials.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCredentialMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-tokenapi-credentials?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(tokenapi.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_tokenapi_credentials.up.sql"); err != nil {
		t.Fatalf("apply credential migration up: %v", err)
	}

	insertStatement := `INSERT INTO tokenapi_credentials (id, storage_key, payload) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertStatement, "cred-1", "tokenApiAuthToken", []byte(`"tok"`)); err != nil {
		t.Fatalf("insert credential: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertStatement, "cred-2", "tokenApiAuthToken", []byte(`"other"`)); err == nil {
		t.Fatalf("expected unique storage key violation")
	}

	var format string
	if err := db.QueryRowContext(ctx, `SELECT payload_format FROM tokenapi_credentials WHERE id = ?`, "cred-1").Scan(&format); err != nil {
		t.Fatalf("select payload format: %v", err)
	}
	if format != "json_token" {
		t.Fatalf("expected default payload format json_token, got %q", format)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_tokenapi_credentials.down.sql"); err != nil {
		t.Fatalf("apply credential migration down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		"tokenapi_credentials",
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected tokenapi_credentials to be dropped after down migration")
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
