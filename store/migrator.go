package store

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Migration files live in store/migration/{dialect}/NNNNN_description.sql and
// are applied by goose. Each dialect directory is versioned independently; the
// goose_db_version table records what has been applied.

//go:embed migration
var migrationFS embed.FS

// gooseDialects maps driver dialect names to goose dialects.
var gooseDialects = map[string]goose.Dialect{
	"postgres": goose.DialectPostgres,
	"sqlite":   goose.DialectSQLite3,
}

// Migrate applies all pending migrations for the driver's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := s.newMigrationProvider()
	if err != nil {
		return err
	}

	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if !initialized {
		slog.Info("initializing new database", slog.String("dialect", s.driver.Dialect()))
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	for _, result := range results {
		slog.Info("applied migration",
			slog.String("file", result.Source.Path),
			slog.Int64("version", result.Source.Version),
			slog.Duration("duration", result.Duration))
	}
	slog.Info("migration completed", slog.Int("migrationsApplied", len(results)))
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	provider, err := s.newMigrationProvider()
	if err != nil {
		return 0, err
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get schema version")
	}
	return version, nil
}

func (s *Store) newMigrationProvider() (*goose.Provider, error) {
	dialect, ok := gooseDialects[s.driver.Dialect()]
	if !ok {
		return nil, errors.Errorf("no migrations for dialect %q", s.driver.Dialect())
	}
	fsys, err := fs.Sub(migrationFS, "migration/"+s.driver.Dialect())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open migration directory")
	}
	provider, err := goose.NewProvider(dialect, s.driver.GetDB(), fsys)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migration provider")
	}
	return provider, nil
}
