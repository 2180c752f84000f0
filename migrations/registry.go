package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	tokenapi "github.com/goliatone/go-tokenapi"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// CredentialsMigration creates the tokenapi_credentials table.
const CredentialsMigration = "00001_tokenapi_credentials"

const (
	migrationsDir = "data/sql/migrations"
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
)

// Source is the migration tree of one dialect. Versions lists the migration
// names found in it, each backed by an up and a down file.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

func (s Source) Has(version string) bool {
	return slices.Contains(s.Versions, version)
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Required    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(dialects ...string) Option {
	return func(r *Registration) {
		if next := normalize(dialects); len(next) > 0 {
			r.Dialects = next
		}
	}
}

// WithRequiredMigrations adds migrations every registered dialect must carry.
func WithRequiredMigrations(versions ...string) Option {
	return func(r *Registration) {
		for _, version := range versions {
			version = strings.TrimSpace(version)
			if version != "" && !slices.Contains(r.Required, version) {
				r.Required = append(r.Required, version)
			}
		}
	}
}

// WithSources replaces the embedded trees, typically with Sources over an
// application owned filesystem.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		copied := make([]Source, 0, len(sources))
		for _, source := range sources {
			dialect := strings.TrimSpace(strings.ToLower(source.Dialect))
			if dialect == "" || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			source.Versions = slices.Clone(source.Versions)
			copied = append(copied, source)
		}
		if len(copied) > 0 {
			r.Sources = copied
		}
	}
}

// Sources scans root, the embedded tree when nil, for the postgres
// migrations under data/sql/migrations and the sqlite variant beneath it.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = tokenapi.GetMigrationsFS()
	}
	base, basePath, err := migrationsRoot(root)
	if err != nil {
		return nil, err
	}
	if info, statErr := fs.Stat(base, DialectSQLite); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("migrations: %s has no sqlite directory", basePath)
	}
	sqliteFS, err := fs.Sub(base, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	postgres, err := scan(DialectPostgres, basePath, base)
	if err != nil {
		return nil, err
	}
	sqlite, err := scan(DialectSQLite, pathJoin(basePath, DialectSQLite), sqliteFS)
	if err != nil {
		return nil, err
	}
	return []Source{postgres, sqlite}, nil
}

// Register validates the credential schema for each target dialect and
// hands its tree to registerFn, usually a persistence client's
// RegisterSQLMigrations.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: "go-tokenapi",
		Dialects:    []string{DialectPostgres, DialectSQLite},
		Required:    []string{CredentialsMigration},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Sources) == 0 {
		sources, err := Sources(nil)
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	for _, dialect := range reg.Dialects {
		index := slices.IndexFunc(reg.Sources, func(source Source) bool { return source.Dialect == dialect })
		if index < 0 {
			return reg, fmt.Errorf("migrations: no migrations for dialect %q", dialect)
		}
		source := reg.Sources[index]
		for _, version := range reg.Required {
			if !source.Has(version) {
				return reg, fmt.Errorf("migrations: %s tree %q is missing %s", dialect, source.Path, version)
			}
		}
		if err := registerFn(ctx, dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", dialect, source.Path, err)
		}
	}
	return reg, nil
}

func scan(dialect, path string, fsys fs.FS) (Source, error) {
	ups, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s %s: %w", dialect, path, err)
	}
	downs, err := fs.Glob(fsys, "*"+downSuffix)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s %s: %w", dialect, path, err)
	}
	if len(ups) == 0 {
		return Source{}, fmt.Errorf("migrations: %s tree %q has no *%s files", dialect, path, upSuffix)
	}

	versions := make([]string, 0, len(ups))
	for _, name := range ups {
		version := strings.TrimSuffix(name, upSuffix)
		if !slices.Contains(downs, version+downSuffix) {
			return Source{}, fmt.Errorf("migrations: %s migration %s has no down file", dialect, version)
		}
		versions = append(versions, version)
	}
	for _, name := range downs {
		version := strings.TrimSuffix(name, downSuffix)
		if !slices.Contains(versions, version) {
			return Source{}, fmt.Errorf("migrations: %s migration %s has no up file", dialect, version)
		}
	}
	slices.Sort(versions)
	return Source{Dialect: dialect, Path: path, FS: fsys, Versions: versions}, nil
}

func migrationsRoot(root fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(root, migrationsDir); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, migrationsDir)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", migrationsDir, err)
		}
		return sub, migrationsDir, nil
	}
	if matches, err := fs.Glob(root, "*"+upSuffix); err == nil && len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", migrationsDir)
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(strings.ToLower(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}

func pathJoin(base string, suffix string) string {
	if base == "." {
		return suffix
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(suffix, "/")
}
