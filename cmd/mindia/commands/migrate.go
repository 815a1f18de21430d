package commands

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver registered as "pgx"
	"github.com/spf13/cobra"

	"github.com/jeremybastin1207/mindia/internal/config"
	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/pkg/store/migrations"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply versioned Postgres schema migrations",
	Long: `Apply the versioned Postgres-only schema migrations (JSONB column
conversions, GIN/composite indexes) that AutoMigrate cannot express. This
is independent of "mindia serve", which AutoMigrates the ordinary table
shapes for both SQLite and Postgres on every startup; "mindia migrate" is
for the Postgres-specific schema a production deployment applies once
per release rather than on every process start.

SQLite deployments have no migrations to run: AutoMigrate at "mindia
serve" startup is the entire schema story for SQLite.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back one migration instead of applying pending ones")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.MustLoad(GetConfigFile())

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cfg.Database.Type != "postgres" {
		logger.Info("database type is not postgres, nothing to migrate", "type", cfg.Database.Type)
		return nil
	}

	return runPostgresMigrations(cfg.Database.Postgres.DSN(), cfg.Database.Postgres.Database)
}

func runPostgresMigrations(connString, databaseName string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("open database connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    databaseName,
	})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if migrateDown {
		logger.Info("rolling back one migration...")
		if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("rollback failed: %w", err)
		}
	} else {
		logger.Info("applying migrations...")
		err = m.Up()
		if err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration failed: %w", err)
		}
		if err == migrate.ErrNoChange {
			logger.Info("no migrations to apply, schema is up to date")
		} else {
			logger.Info("migrations applied successfully")
		}
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("read migration version: %w", err)
	}
	if err == migrate.ErrNilVersion {
		logger.Info("no migrations applied yet")
	} else {
		logger.Info("current schema version", "version", version, "dirty", dirty)
		if dirty {
			logger.Warn("database schema is in a dirty state, manual intervention may be required")
		}
	}

	return nil
}
