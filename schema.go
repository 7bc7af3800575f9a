package auth

import (
	"context"
	"io/fs"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies the embedded migrations for the db dialect that are
// not yet recorded in the bun_migrations table.
func Migrate(ctx context.Context, db *bun.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	if err := migrator.Init(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to initialize migrations table")
	}

	if err := migrator.Lock(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to lock migrations")
	}
	defer func() { _ = migrator.Unlock(ctx) }()

	if _, err := migrator.Migrate(ctx); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}

func newMigrator(db *bun.DB) (*migrate.Migrator, error) {
	dir, err := migrationsDir(db.Dialect().Name())
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open migrations").
			WithMetadata(map[string]any{"dir": dir})
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to discover migrations").
			WithMetadata(map[string]any{"dir": dir})
	}

	return migrate.NewMigrator(db, migrations), nil
}

func migrationsDir(name dialect.Name) (string, error) {
	switch name {
	case dialect.SQLite:
		return "data/sql/migrations/sqlite", nil
	case dialect.PG:
		return "data/sql/migrations/postgres", nil
	default:
		return "", errors.New("unsupported database dialect", errors.CategoryInternal).
			WithMetadata(map[string]any{"dialect": name.String()})
	}
}
